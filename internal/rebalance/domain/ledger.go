package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the last-known state of one traded symbol.
type LedgerEntry struct {
	Symbol string `json:"symbol"`
	// Available margin balance of the base asset. Never negative.
	Available decimal.Decimal `json:"available"`
	// Minimum order-size step mandated by the venue. Positive once known.
	BaseIncrement decimal.Decimal `json:"base_increment"`
}

// HasIncrement reports whether size quantization is possible yet.
func (e LedgerEntry) HasIncrement() bool {
	return e.BaseIncrement.IsPositive()
}

// Ledger is the in-memory table of per-symbol balances. It is the only
// mutable shared state of the service; all access goes through one lock
// so a candle read never observes a torn balance write.
//
// Events carry no sequence numbers, so updates are last-write-wins: the
// most recently applied update replaces the entry unconditionally.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]LedgerEntry
}

// NewLedger creates an empty ledger. Entries appear only through Upsert;
// decisions for symbols without an entry are skipped, never errors.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]LedgerEntry)}
}

// Upsert replaces the entry for symbol and returns the previous entry for
// audit logging, with ok=false when the symbol was not known before.
func (l *Ledger) Upsert(symbol string, available, baseIncrement decimal.Decimal) (prev LedgerEntry, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok = l.entries[symbol]
	l.entries[symbol] = LedgerEntry{
		Symbol:        symbol,
		Available:     available,
		BaseIncrement: baseIncrement,
	}
	return prev, ok
}

// Get returns a copy of the entry for symbol.
func (l *Ledger) Get(symbol string) (LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[symbol]
	return entry, ok
}

// Snapshot returns a copy of all entries, for the ops endpoints.
func (l *Ledger) Snapshot() []LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	return entries
}

// Len returns the number of tracked symbols.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
