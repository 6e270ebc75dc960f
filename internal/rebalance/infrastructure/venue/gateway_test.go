package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSubmitMarginLimitOrder(t *testing.T) {
	var gotPayload map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/margin/order", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"code":"200000","data":{"orderId":"oid-123"}}`))
	})
	g := NewGateway(c)

	orderID, err := g.SubmitMarginLimitOrder(context.Background(), domain.SubmitOrderRequest{
		ClientOID: "tok-1",
		Symbol:    "BTC-USDT",
		Side:      domain.SideSell,
		Price:     dec("10"),
		Size:      dec("50.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "oid-123", orderID)

	assert.Equal(t, "tok-1", gotPayload["clientOid"])
	assert.Equal(t, "sell", gotPayload["side"])
	assert.Equal(t, "BTC-USDT", gotPayload["symbol"])
	assert.Equal(t, "10", gotPayload["price"])
	assert.Equal(t, "50", gotPayload["size"])
	assert.Equal(t, "limit", gotPayload["type"])
	assert.Equal(t, "GTC", gotPayload["timeInForce"])
	assert.Equal(t, true, gotPayload["autoBorrow"])
	assert.Equal(t, true, gotPayload["autoRepay"])
}

func TestSubmitRejectionClassifies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200004","msg":"balance insufficient"}`))
	})
	g := NewGateway(c)

	_, err := g.SubmitMarginLimitOrder(context.Background(), domain.SubmitOrderRequest{
		ClientOID: "tok-1",
		Symbol:    "BTC-USDT",
		Side:      domain.SideBuy,
		Price:     dec("10"),
		Size:      dec("1"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestCancelOrder(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		gotPath = r.URL.Path
		w.Write([]byte(`{"code":"200000","data":{"cancelledOrderIds":["oid-1"]}}`))
	})
	g := NewGateway(c)

	require.NoError(t, g.CancelOrder(context.Background(), "oid-1"))
	assert.Equal(t, "/api/v1/orders/oid-1", gotPath)
}

func TestCancelAlreadyResolvedIsNoop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"400100","msg":"order not exist or not allowed to cancel"}`))
	})
	g := NewGateway(c)

	assert.NoError(t, g.CancelOrder(context.Background(), "gone"))
}

func TestCancelTransientFailurePropagates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":"503000","msg":"unavailable"}`))
	})
	g := NewGateway(c)

	err := g.CancelOrder(context.Background(), "oid-1")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestListActiveOrdersWalksPagination(t *testing.T) {
	createdAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		q := r.URL.Query()
		require.Equal(t, "active", q.Get("status"))
		require.Equal(t, "MARGIN_TRADE", q.Get("tradeType"))
		require.Equal(t, "limit", q.Get("type"))

		page := q.Get("currentPage")
		fmt.Fprintf(w, `{"code":"200000","data":{
			"currentPage": %s,
			"totalPage": 2,
			"items": [{
				"id": "oid-%s",
				"symbol": "BTC-USDT",
				"side": "sell",
				"price": "10",
				"size": "1.5",
				"createdAt": %d
			}]
		}}`, page, page, createdAt.UnixMilli())
	})
	g := NewGateway(c)

	orders, err := g.ListActiveOrders(context.Background(), domain.ActiveOrderFilter{
		TradeType: "MARGIN_TRADE",
		OrderType: "limit",
	})
	require.NoError(t, err)

	require.Len(t, orders, 2)
	assert.Equal(t, "oid-1", orders[0].OrderID)
	assert.Equal(t, "oid-2", orders[1].OrderID)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, domain.OrderStatusActive, orders[0].Status)
	assert.True(t, orders[0].Price.Equal(dec("10")))
	assert.True(t, orders[0].Size.Equal(dec("1.5")))
	assert.True(t, orders[0].CreatedAt.Equal(createdAt))
}

func TestListActiveOrdersSkipsUnparsableItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200000","data":{
			"currentPage": 1,
			"totalPage": 1,
			"items": [
				{"id": "bad", "symbol": "X-USDT", "side": "buy", "price": "oops", "size": "1", "createdAt": 0},
				{"id": "good", "symbol": "BTC-USDT", "side": "buy", "price": "10", "size": "1", "createdAt": 0}
			]
		}}`))
	})
	g := NewGateway(c)

	orders, err := g.ListActiveOrders(context.Background(), domain.ActiveOrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "good", orders[0].OrderID)
}
