package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a venue order.
type OrderStatus string

const (
	OrderStatusActive   OrderStatus = "ACTIVE"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// OpenOrder is the venue's view of a limit order created by this service.
type OpenOrder struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
	Status    OrderStatus     `json:"status"`
}

// Transition moves the order to next. Only Active orders may move, and
// only into a terminal state; terminal states are one-way.
func (o *OpenOrder) Transition(next OrderStatus) error {
	if o.Status.Terminal() {
		return ErrInvalidTransition
	}
	if !next.Terminal() {
		return ErrInvalidTransition
	}
	o.Status = next
	return nil
}

// IsStale reports whether the order has been open longer than threshold.
func (o OpenOrder) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(o.CreatedAt) > threshold
}
