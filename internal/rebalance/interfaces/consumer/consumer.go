// Package consumer holds the Kafka handlers for the balance and candle
// topics. A handler returning nil acknowledges the message; returning an
// error leaves it unacknowledged for redelivery.
package consumer

import (
	"context"

	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
	"github.com/wyfcoding/rebalancer/pkg/mq"
)

// poison routes a malformed event to the dead letter topic and
// acknowledges it, so a schema violation never blocks the partition.
// Only a DLQ publish failure keeps the message unacknowledged.
func poison(ctx context.Context, dlq *mq.DeadLetterQueue, m *metrics.Metrics, msg *mq.Message, reason string, cause error) error {
	logger.Error(ctx, "poison message",
		"topic", msg.Topic,
		"offset", msg.Offset,
		"reason", reason,
		"error", cause,
		"payload", string(msg.Value),
	)

	if m != nil {
		m.PoisonMessagesTotal.Inc()
	}
	if dlq != nil {
		if err := dlq.Send(ctx, msg, reason, cause); err != nil {
			return err
		}
	}
	return nil
}
