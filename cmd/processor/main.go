package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/internal/rebalance/infrastructure/venue"
	"github.com/wyfcoding/rebalancer/internal/rebalance/interfaces/consumer"
	httpserver "github.com/wyfcoding/rebalancer/internal/rebalance/interfaces/http"
	"github.com/wyfcoding/rebalancer/pkg/config"
	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
	"github.com/wyfcoding/rebalancer/pkg/middleware"
	"github.com/wyfcoding/rebalancer/pkg/mq"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/processor/config.toml", "config file path")

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
	m := metrics.New("processor")
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

	ledger := domain.NewLedger()

	// 5. Application
	processor := application.NewProcessorService(
		ledger,
		gateway,
		cfg.Trading.BaseKeepDecimal(),
		cfg.Trading.Quote,
		cfg.Trading.Symbols,
		cfg.Trading.IgnoreSymbols,
		m,
	)

	// 6. Kafka consumers + DLQ producer
	kafkaCfg := mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}

	producer := mq.NewProducer(kafkaCfg)
	dlq := mq.NewDeadLetterQueue(producer, cfg.Kafka.DLQSuffix)

	balanceConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.BalanceTopic)
	candleConsumer := mq.NewConsumer(kafkaCfg, cfg.Kafka.CandleTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer.NewBalanceHandler(processor, dlq, m).Subscribe(ctx, balanceConsumer)
	consumer.NewCandleHandler(processor, dlq, m).Subscribe(ctx, candleConsumer)

	// 7. Ops HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinLoggingMiddleware(), middleware.GinRecoveryMiddleware())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "symbols": ledger.Len()})
	})
	httpserver.NewLedgerHandler(processor).RegisterRoutes(r.Group("/api"))

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: r}

	// 8. Start
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ops HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down processor...")
		case <-gctx.Done():
			slog.Info("context cancelled, shutting down...")
		}

		// Let in-flight handlers finish before the bus connection closes,
		// so no message is lost half-acknowledged.
		cancel()
		balanceConsumer.Wait()
		candleConsumer.Wait()
		balanceConsumer.Close()
		candleConsumer.Close()
		producer.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	slog.Info("processor started",
		"base_keep", cfg.Trading.BaseKeep,
		"quote", cfg.Trading.Quote,
		"symbols", cfg.Trading.Symbols,
	)

	if err := g.Wait(); err != nil {
		slog.Error("processor exited with error", "error", err)
	}
}
