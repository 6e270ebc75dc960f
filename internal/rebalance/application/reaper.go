package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
)

// marginTradeType is the venue trade type this service manages.
const marginTradeType = "MARGIN_TRADE"

// ReaperService cancels limit orders left open longer than the stale
// threshold. The threshold defaults to just under one hour so that clock
// skew against the venue never keeps an order alive past the hour.
//
// The reaper is stateless between sweeps: a missed or duplicated sweep is
// self-correcting, and failed cancels are retried on the next sweep.
type ReaperService struct {
	gateway   domain.OrderGateway
	interval  time.Duration
	threshold time.Duration
	metrics   *metrics.Metrics

	// now is swapped in tests.
	now func() time.Time
}

// NewReaperService creates the reaper.
func NewReaperService(gateway domain.OrderGateway, interval, threshold time.Duration, m *metrics.Metrics) *ReaperService {
	return &ReaperService{
		gateway:   gateway,
		interval:  interval,
		threshold: threshold,
		metrics:   m,
		now:       time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is canceled. The ticker is
// released cleanly on shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info(ctx, "reaper started",
		"interval", s.interval.String(),
		"stale_threshold", s.threshold.String(),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			canceled, err := s.Sweep(ctx)
			if err != nil {
				// Next tick retries; no immediate retry.
				logger.Error(ctx, "sweep failed", "error", err)
				continue
			}
			if canceled > 0 {
				logger.Info(ctx, "sweep done", "canceled", canceled)
			}
		}
	}
}

// Sweep fetches all active managed limit orders and cancels the stale
// ones. Returns the number of successful cancels.
func (s *ReaperService) Sweep(ctx context.Context) (int, error) {
	orders, err := s.gateway.ListActiveOrders(ctx, domain.ActiveOrderFilter{
		TradeType: marginTradeType,
		OrderType: "limit",
	})
	if err != nil {
		return 0, fmt.Errorf("list active orders: %w", err)
	}

	now := s.now()
	canceled := 0
	for _, order := range orders {
		if !order.IsStale(now, s.threshold) {
			continue
		}

		logger.Warn(ctx, "stale order, canceling",
			"order_id", order.OrderID,
			"symbol", order.Symbol,
			"side", order.Side,
			"age", now.Sub(order.CreatedAt).String(),
		)

		if err := s.gateway.CancelOrder(ctx, order.OrderID); err != nil {
			// Cancels of already-resolved orders are no-ops inside the
			// gateway; anything else waits for the next sweep.
			logger.Error(ctx, "cancel failed, will retry next sweep",
				"order_id", order.OrderID,
				"error", err,
			)
			continue
		}

		canceled++
		if s.metrics != nil {
			s.metrics.OrdersReapedTotal.Inc()
		}
	}

	return canceled, nil
}
