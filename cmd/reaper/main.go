package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
	"github.com/wyfcoding/rebalancer/internal/rebalance/infrastructure/venue"
	"github.com/wyfcoding/rebalancer/pkg/config"
	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/reaper/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 3. Metrics
	m := metrics.New("reaper")
	if err := m.Register(); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. Infrastructure
	venueClient := venue.NewClient(cfg.Venue.BaseURL, venue.Credentials{
		Key:        cfg.Venue.Key,
		Secret:     cfg.Venue.Secret,
		Passphrase: cfg.Venue.Passphrase,
		KeyVersion: cfg.Venue.KeyVersion,
	}, time.Duration(cfg.Venue.Timeout)*time.Second, m)
	gateway := venue.NewGateway(venueClient)

	// 5. Application
	reaper := application.NewReaperService(
		gateway,
		cfg.Reaper.IntervalDuration(),
		cfg.Reaper.StaleThresholdDuration(),
		m,
	)

	// 6. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := reaper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down reaper...")
		case <-gctx.Done():
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("reaper exited with error", "error", err)
	}
}
