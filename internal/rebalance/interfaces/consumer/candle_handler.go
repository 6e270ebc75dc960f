package consumer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
	"github.com/wyfcoding/rebalancer/pkg/mq"
)

// tokenNamespace seeds the deterministic idempotency tokens derived from
// message coordinates. Never change it: a redelivered message must map to
// the clientOid it mapped to before.
var tokenNamespace = uuid.MustParse("8a9c1df2-40aa-4c39-9f4e-2f6d3f5b7a61")

// CandleHandler 消费 K 线开盘价事件并触发再平衡决策。
type CandleHandler struct {
	processor *application.ProcessorService
	dlq       *mq.DeadLetterQueue
	metrics   *metrics.Metrics
}

func NewCandleHandler(processor *application.ProcessorService, dlq *mq.DeadLetterQueue, m *metrics.Metrics) *CandleHandler {
	return &CandleHandler{processor: processor, dlq: dlq, metrics: m}
}

// Handle evaluates one candle event, a single-key object
// {"<symbol>": "<openPrice>"}. The message is acknowledged only after the
// resulting order submission resolves; a transient submission failure
// leaves it unacknowledged so the bus redelivers it.
func (h *CandleHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var payload map[string]string
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return poison(ctx, h.dlq, h.metrics, msg, "candle event is not valid JSON", err)
	}
	if len(payload) != 1 {
		return poison(ctx, h.dlq, h.metrics, msg,
			"candle event must be a single-key object",
			fmt.Errorf("got %d keys", len(payload)))
	}

	var symbol, priceStr string
	for k, v := range payload {
		symbol, priceStr = k, v
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return poison(ctx, h.dlq, h.metrics, msg, "candle event has invalid price", err)
	}
	if !price.IsPositive() {
		return poison(ctx, h.dlq, h.metrics, msg,
			"candle event has non-positive price",
			fmt.Errorf("price %s", price))
	}

	return h.processor.ProcessTick(ctx, application.PriceTick{
		Symbol: symbol,
		Price:  price,
		Token:  idempotencyToken(msg),
	})
}

// Subscribe starts consuming with a single in-flight message, which bounds
// concurrent submissions against the venue's rate limits.
func (h *CandleHandler) Subscribe(ctx context.Context, c *mq.KafkaConsumer) {
	c.Start(ctx, 1, h.Handle)
}

// idempotencyToken derives the clientOid from the message coordinates, so
// every redelivery of the same message reuses the same token and the venue
// deduplicates the retried submission.
func idempotencyToken(msg *mq.Message) string {
	coords := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	u := uuid.NewSHA1(tokenNamespace, []byte(coords))
	return fmt.Sprintf("%x", [16]byte(u))
}
