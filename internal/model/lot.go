package model

import (
	"fmt"
	"time"
)

// Action is the kind of inventory change a lot records.
type Action string

// Valid lot actions. Buy and deposit add supply; sell and withdraw consume it.
const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
)

// IsSupply reports whether the action adds inventory.
func (a Action) IsSupply() bool {
	return a == ActionBuy || a == ActionDeposit
}

// IsConsuming reports whether the action draws down inventory.
func (a Action) IsConsuming() bool {
	return a == ActionSell || a == ActionWithdraw
}

// Lot is a single cost-basis accounting record. Once committed it is
// immutable history; edits and deletes are only permitted while no later
// consuming lot has drawn from it.
//
// Qty is signed: strictly positive for buy/deposit, strictly negative for
// sell/withdraw. UnitCostUSD is required for buys, must be nil for
// withdrawals, and is optional for sells and deposits (a nil-cost deposit
// reconciles as infinite-cost supply, consumed after every costed lot).
type Lot struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Asset       string    `json:"asset"`
	Qty         float64   `json:"qty"`
	UnitCostUSD *float64  `json:"unit_cost_usd"`
	TS          time.Time `json:"ts"`
	Note        string    `json:"note,omitempty"`
}

// LedgerMeta is the ledger header persisted alongside the lots.
type LedgerMeta struct {
	LastID    int       `json:"last_id"`
	Strategy  string    `json:"strategy"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is the full persisted cost-basis book: lots grouped by asset plus
// the monotonic id counter. It is owned by the ledger repository and only
// mutated through validate-then-commit transactions.
type Ledger struct {
	Meta    LedgerMeta       `json:"meta"`
	ByAsset map[string][]Lot `json:"by_asset"`
}

// NewLedger returns an empty ledger with the LOFO strategy marker set.
func NewLedger() *Ledger {
	return &Ledger{
		Meta:    LedgerMeta{Strategy: "LOFO"},
		ByAsset: make(map[string][]Lot),
	}
}

// AllLots flattens the ledger into a single slice, in per-asset order.
func (l *Ledger) AllLots() []Lot {
	var out []Lot
	for _, lots := range l.ByAsset {
		out = append(out, lots...)
	}
	return out
}

// FormatLotID renders a numeric lot id in the fixed-width zero-padded form
// used across persistence, export, and the API ("000001").
func FormatLotID(n int) string {
	return fmt.Sprintf("%06d", n)
}

// Float64Ptr returns a pointer to v. Convenience for nullable lot fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
