package consumer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/mq"
)

type fakeGateway struct {
	submitted []domain.SubmitOrderRequest
	submitErr error
}

func (f *fakeGateway) SubmitMarginLimitOrder(_ context.Context, req domain.SubmitOrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "oid-1", nil
}

func (f *fakeGateway) CancelOrder(context.Context, string) error { return nil }

func (f *fakeGateway) ListActiveOrders(context.Context, domain.ActiveOrderFilter) ([]domain.OpenOrder, error) {
	return nil, nil
}

func keep(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newProcessor(gw domain.OrderGateway) *application.ProcessorService {
	return application.NewProcessorService(domain.NewLedger(), gw, keep("500"), "USDT", nil, nil, nil)
}

func balanceMsg(payload string) *mq.Message {
	return &mq.Message{Topic: "balance", Partition: 0, Offset: 1, Value: []byte(payload)}
}

func candleMsg(payload string, offset int64) *mq.Message {
	return &mq.Message{Topic: "candle", Partition: 0, Offset: offset, Value: []byte(payload)}
}

func TestBalanceHandlerUpsertsLedger(t *testing.T) {
	gw := &fakeGateway{}
	p := newProcessor(gw)
	h := NewBalanceHandler(p, nil, nil)

	err := h.Handle(context.Background(), balanceMsg(
		`{"symbol":"BTC-USDT","baseincrement":"0.01","available":"100"}`))
	require.NoError(t, err)

	entry, ok := p.Ledger().Get("BTC-USDT")
	require.True(t, ok)
	assert.True(t, entry.Available.Equal(keep("100")))
}

func TestBalanceHandlerAcknowledgesPoisonMessages(t *testing.T) {
	p := newProcessor(&fakeGateway{})
	h := NewBalanceHandler(p, nil, nil)

	// All of these are schema violations: they must be dropped (nil error
	// means acknowledged), never block the queue.
	cases := []string{
		`not json at all`,
		`{"symbol":"BTC-USDT","baseincrement":"0.01","available":"abc"}`,
		`{"symbol":"BTC-USDT","baseincrement":"xyz","available":"1"}`,
		`{"symbol":"BTC-USDT","baseincrement":"0","available":"1"}`,
		`{"symbol":"BTC-USDT","baseincrement":"0.01","available":"-5"}`,
		`{"symbol":"","baseincrement":"0.01","available":"5"}`,
	}
	for _, payload := range cases {
		assert.NoError(t, h.Handle(context.Background(), balanceMsg(payload)), "payload %s", payload)
	}

	assert.Equal(t, 0, p.Ledger().Len())
}

func TestCandleHandlerSubmitsOrder(t *testing.T) {
	gw := &fakeGateway{}
	p := newProcessor(gw)

	require.NoError(t, NewBalanceHandler(p, nil, nil).Handle(context.Background(), balanceMsg(
		`{"symbol":"BTC-USDT","baseincrement":"0.01","available":"100"}`)))

	h := NewCandleHandler(p, nil, nil)
	err := h.Handle(context.Background(), candleMsg(`{"BTC-USDT":"10"}`, 7))
	require.NoError(t, err)

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, domain.SideSell, gw.submitted[0].Side)
	assert.True(t, gw.submitted[0].Size.Equal(keep("50")))
	assert.NotEmpty(t, gw.submitted[0].ClientOID)
}

func TestCandleHandlerUnknownSymbolIsAcknowledged(t *testing.T) {
	gw := &fakeGateway{}
	h := NewCandleHandler(newProcessor(gw), nil, nil)

	err := h.Handle(context.Background(), candleMsg(`{"ETH-USDT":"10"}`, 1))
	require.NoError(t, err)
	assert.Empty(t, gw.submitted)
}

func TestCandleHandlerAcknowledgesPoisonMessages(t *testing.T) {
	gw := &fakeGateway{}
	h := NewCandleHandler(newProcessor(gw), nil, nil)

	cases := []string{
		`broken`,
		`{}`,
		`{"BTC-USDT":"10","ETH-USDT":"20"}`,
		`{"BTC-USDT":"not a number"}`,
		`{"BTC-USDT":"0"}`,
		`{"BTC-USDT":"-3"}`,
	}
	for _, payload := range cases {
		assert.NoError(t, h.Handle(context.Background(), candleMsg(payload, 1)), "payload %s", payload)
	}
	assert.Empty(t, gw.submitted)
}

func TestCandleHandlerTransientFailureLeavesUnacknowledged(t *testing.T) {
	gw := &fakeGateway{submitErr: domain.ErrTransient}
	p := newProcessor(gw)

	require.NoError(t, NewBalanceHandler(p, nil, nil).Handle(context.Background(), balanceMsg(
		`{"symbol":"BTC-USDT","baseincrement":"0.01","available":"100"}`)))

	h := NewCandleHandler(p, nil, nil)
	err := h.Handle(context.Background(), candleMsg(`{"BTC-USDT":"10"}`, 1))
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestIdempotencyTokenIsDeterministic(t *testing.T) {
	msg := candleMsg(`{"BTC-USDT":"10"}`, 42)

	// A redelivered message (same coordinates) maps to the same clientOid,
	// so the venue deduplicates the retried submission.
	assert.Equal(t, idempotencyToken(msg), idempotencyToken(msg))

	other := candleMsg(`{"BTC-USDT":"10"}`, 43)
	assert.NotEqual(t, idempotencyToken(msg), idempotencyToken(other))

	assert.Len(t, idempotencyToken(msg), 32)
	assert.NotContains(t, idempotencyToken(msg), "-")
}
