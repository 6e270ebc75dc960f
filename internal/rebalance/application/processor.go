// Package application wires the rebalance domain to the event bus and the
// venue gateway.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
)

// BalanceUpdate is a validated balance event ready to be applied.
type BalanceUpdate struct {
	Symbol        string
	Available     decimal.Decimal
	BaseIncrement decimal.Decimal
}

// PriceTick is a validated candle open price for one symbol.
type PriceTick struct {
	Symbol string
	Price  decimal.Decimal
	// Token is the idempotency token for any order this tick produces.
	// A redelivered tick must carry the same token.
	Token string
}

// ProcessorService applies balance events to the ledger and turns price
// ticks into rebalance orders.
type ProcessorService struct {
	ledger     *domain.Ledger
	gateway    domain.OrderGateway
	targetKeep decimal.Decimal
	managed    map[string]struct{}
	ignored    map[string]struct{}
	metrics    *metrics.Metrics
}

// NewProcessorService creates the processor. symbols and ignoreSymbols are
// base currencies from config; they are paired with quote to form the
// managed symbol set. An empty symbols list manages everything not ignored.
func NewProcessorService(
	ledger *domain.Ledger,
	gateway domain.OrderGateway,
	targetKeep decimal.Decimal,
	quote string,
	symbols, ignoreSymbols []string,
	m *metrics.Metrics,
) *ProcessorService {
	managed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		managed[pairSymbol(s, quote)] = struct{}{}
	}
	ignored := make(map[string]struct{}, len(ignoreSymbols))
	for _, s := range ignoreSymbols {
		ignored[pairSymbol(s, quote)] = struct{}{}
	}

	return &ProcessorService{
		ledger:     ledger,
		gateway:    gateway,
		targetKeep: targetKeep,
		managed:    managed,
		ignored:    ignored,
		metrics:    m,
	}
}

// Ledger exposes the ledger for the ops endpoints.
func (s *ProcessorService) Ledger() *domain.Ledger {
	return s.ledger
}

// Managed reports whether this service trades the symbol.
func (s *ProcessorService) Managed(symbol string) bool {
	if _, skip := s.ignored[symbol]; skip {
		return false
	}
	if len(s.managed) == 0 {
		return true
	}
	_, ok := s.managed[symbol]
	return ok
}

// ApplyBalance upserts the ledger entry for the event's symbol.
// Last-write-wins: events carry no sequence numbers, so the most recently
// applied update replaces the entry regardless of true recency.
func (s *ProcessorService) ApplyBalance(ctx context.Context, ev BalanceUpdate) error {
	if ev.Symbol == "" || ev.Available.IsNegative() || !ev.BaseIncrement.IsPositive() {
		return fmt.Errorf("balance event for %q with available=%s baseincrement=%s: %w",
			ev.Symbol, ev.Available, ev.BaseIncrement, domain.ErrMalformedEvent)
	}

	if !s.Managed(ev.Symbol) {
		logger.Debug(ctx, "balance event for unmanaged symbol skipped", "symbol", ev.Symbol)
		return nil
	}

	prev, known := s.ledger.Upsert(ev.Symbol, ev.Available, ev.BaseIncrement)
	if s.metrics != nil {
		s.metrics.LedgerUpdatesTotal.Inc()
	}

	before := "-"
	if known {
		before = prev.Available.String()
	}
	logger.Info(ctx, "balance changed",
		"symbol", ev.Symbol,
		"before", before,
		"after", ev.Available.String(),
		"base_increment", ev.BaseIncrement.String(),
	)
	return nil
}

// ProcessTick evaluates one price tick. Transient gateway failures
// propagate so the caller withholds acknowledgment; everything else is
// absorbed here.
func (s *ProcessorService) ProcessTick(ctx context.Context, tick PriceTick) error {
	if !s.Managed(tick.Symbol) {
		logger.Debug(ctx, "tick for unmanaged symbol skipped", "symbol", tick.Symbol)
		return nil
	}

	entry, ok := s.ledger.Get(tick.Symbol)
	if !ok {
		// No balance snapshot yet. Valid state: nothing to do.
		logger.Debug(ctx, "no ledger entry yet, skipping tick", "symbol", tick.Symbol)
		return nil
	}

	decision, err := domain.Decide(tick.Price, entry, s.targetKeep)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIncrementUnknown):
			logger.Warn(ctx, "base increment unknown, skipping decision", "symbol", tick.Symbol)
		case errors.Is(err, domain.ErrInvalidPrice):
			logger.Warn(ctx, "invalid price discarded", "symbol", tick.Symbol, "price", tick.Price)
		default:
			logger.Error(ctx, "decision failed", "symbol", tick.Symbol, "error", err)
		}
		return nil
	}

	if decision.Suppressed() {
		if s.metrics != nil {
			s.metrics.DecisionsSuppressed.Inc()
		}
		logger.Debug(ctx, "decision quantized to zero, suppressed",
			"symbol", tick.Symbol,
			"side", decision.Side,
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.DecisionsTotal.WithLabelValues(string(decision.Side)).Inc()
	}

	orderID, err := s.gateway.SubmitMarginLimitOrder(ctx, domain.SubmitOrderRequest{
		ClientOID: tick.Token,
		Symbol:    decision.Symbol,
		Side:      decision.Side,
		Price:     tick.Price,
		Size:      decision.Size,
	})
	if err != nil {
		if domain.IsTransient(err) {
			// Leave the message unacknowledged; the bus redelivers and the
			// idempotency token makes the retry safe.
			return fmt.Errorf("submit order for %s: %w", tick.Symbol, err)
		}
		if s.metrics != nil {
			s.metrics.OrdersRejectedTotal.Inc()
		}
		logger.Error(ctx, "order permanently rejected",
			"symbol", tick.Symbol,
			"side", decision.Side,
			"size", decision.Size,
			"error", err,
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.OrdersSubmittedTotal.Inc()
	}
	logger.Info(ctx, "rebalance order placed",
		"symbol", tick.Symbol,
		"side", decision.Side,
		"price", tick.Price,
		"size", decision.Size,
		"order_id", orderID,
	)
	return nil
}

func pairSymbol(base, quote string) string {
	base = strings.ToUpper(strings.TrimSpace(base))
	if strings.Contains(base, "-") {
		return base
	}
	return base + "-" + strings.ToUpper(quote)
}
