package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SubmitOrderRequest describes one margin limit order submission.
// ClientOID is the caller-chosen idempotency token: the venue deduplicates
// submissions carrying the same token, so a redelivered message must carry
// the same ClientOID it carried the first time.
type SubmitOrderRequest struct {
	ClientOID string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// ActiveOrderFilter narrows ListActiveOrders to the orders this service
// manages.
type ActiveOrderFilter struct {
	TradeType string
	OrderType string
}

// OrderGateway is the capability boundary to the venue's signed REST API.
type OrderGateway interface {
	// SubmitMarginLimitOrder places a GTC margin limit order and returns
	// the venue's order ID. Errors classify as transient (retry through
	// redelivery) or permanent (absorb) via IsTransient/IsPermanent.
	SubmitMarginLimitOrder(ctx context.Context, req SubmitOrderRequest) (string, error)

	// CancelOrder cancels by venue order ID. Canceling an order that is
	// already filled or canceled is a no-op, not an error.
	CancelOrder(ctx context.Context, orderID string) error

	// ListActiveOrders returns all open orders matching filter.
	ListActiveOrders(ctx context.Context, filter ActiveOrderFilter) ([]OpenOrder, error)
}
