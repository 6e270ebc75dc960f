package domain

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of a rebalance order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Decision is the output of the rebalance engine: bring the symbol's
// stable-currency value back to the configured target.
type Decision struct {
	Symbol string          `json:"symbol"`
	Side   Side            `json:"side"`
	Size   decimal.Decimal `json:"size"`
}

// Suppressed reports whether the decision quantized down to nothing and
// must not reach the order gateway.
func (d Decision) Suppressed() bool {
	return d.Size.IsZero()
}

// Decide computes the order that moves the symbol's cash value back to
// targetKeep. Pure: identical inputs always yield an identical decision.
//
//	cashValue = price * available
//	sell the surplus when cashValue >= targetKeep, buy the deficit otherwise
//	size     = rawSize truncated down to a multiple of the base increment
//
// Truncating toward zero guarantees the order never spends more than the
// surplus/deficit. Returns ErrInvalidPrice for non-positive prices and
// ErrIncrementUnknown when quantization is impossible.
func Decide(price decimal.Decimal, entry LedgerEntry, targetKeep decimal.Decimal) (Decision, error) {
	if !price.IsPositive() {
		return Decision{}, ErrInvalidPrice
	}
	if !entry.HasIncrement() {
		return Decision{}, ErrIncrementUnknown
	}

	cashValue := price.Mul(entry.Available)

	var side Side
	var diff decimal.Decimal
	if cashValue.GreaterThanOrEqual(targetKeep) {
		side = SideSell
		diff = cashValue.Sub(targetKeep)
	} else {
		side = SideBuy
		diff = targetKeep.Sub(cashValue)
	}

	// rawSize = diff / price, quantized down to the base increment:
	// size = trunc(diff / (price*increment)) * increment. QuoRem keeps the
	// arithmetic exact, so size <= rawSize and size*price never overshoots
	// |cashValue - targetKeep|.
	steps, _ := diff.QuoRem(price.Mul(entry.BaseIncrement), 0)
	size := steps.Mul(entry.BaseIncrement)

	return Decision{
		Symbol: entry.Symbol,
		Side:   side,
		Size:   size,
	}, nil
}
