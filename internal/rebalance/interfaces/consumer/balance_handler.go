package consumer

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
	"github.com/wyfcoding/rebalancer/pkg/mq"
)

// BalanceHandler 消费余额事件并更新 ledger。
type BalanceHandler struct {
	processor *application.ProcessorService
	dlq       *mq.DeadLetterQueue
	metrics   *metrics.Metrics
}

func NewBalanceHandler(processor *application.ProcessorService, dlq *mq.DeadLetterQueue, m *metrics.Metrics) *BalanceHandler {
	return &BalanceHandler{processor: processor, dlq: dlq, metrics: m}
}

// Handle applies one balance event. Malformed payloads go to the DLQ and
// are acknowledged; valid events are acknowledged after the ledger upsert.
func (h *BalanceHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var payload struct {
		Symbol        string `json:"symbol"`
		BaseIncrement string `json:"baseincrement"`
		Available     string `json:"available"`
	}
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return poison(ctx, h.dlq, h.metrics, msg, "balance event is not valid JSON", err)
	}

	available, err := decimal.NewFromString(payload.Available)
	if err != nil {
		return poison(ctx, h.dlq, h.metrics, msg, "balance event has invalid available amount", err)
	}
	increment, err := decimal.NewFromString(payload.BaseIncrement)
	if err != nil {
		return poison(ctx, h.dlq, h.metrics, msg, "balance event has invalid base increment", err)
	}

	err = h.processor.ApplyBalance(ctx, application.BalanceUpdate{
		Symbol:        payload.Symbol,
		Available:     available,
		BaseIncrement: increment,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			return poison(ctx, h.dlq, h.metrics, msg, "balance event violates schema invariants", err)
		}
		return err
	}
	return nil
}

// Subscribe starts consuming with a single in-flight message.
func (h *BalanceHandler) Subscribe(ctx context.Context, c *mq.KafkaConsumer) {
	c.Start(ctx, 1, h.Handle)
}
