// Package lotengine implements the pure cost-basis accounting core:
// normalization and validation of lot batches, and LOFO (lowest-cost-first-
// out) inventory reconciliation. The engine never performs I/O and never
// mutates its inputs; callers commit the resulting state themselves.
package lotengine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// qtyTolerance bounds floating point noise when deciding whether supply has
// been drawn from or fully depleted.
const qtyTolerance = 1e-12

// Violation describes one validation failure for one lot.
type Violation struct {
	Asset   string `json:"asset"`
	LotID   string `json:"lot_id"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("asset=%s id=%s: %s", v.Asset, v.LotID, v.Message)
}

// ValidationError carries every violation found in a batch. Validation never
// stops at the first problem; the whole batch is rejected with the full list.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return "invalid lots: " + strings.Join(msgs, "; ")
}

// NormalizeAndSort coerces raw lots to the canonical shape and orders every
// asset's lots ascending by (ts, id). That ordering is the single source of
// truth for chronological processing: it is total and stable, so
// reconciliation is deterministic regardless of input order.
//
// The input is not modified; a new map with copied slices is returned.
func NormalizeAndSort(byAsset map[string][]model.Lot) map[string][]model.Lot {
	out := make(map[string][]model.Lot, len(byAsset))
	for asset, lots := range byAsset {
		sorted := make([]model.Lot, len(lots))
		copy(sorted, lots)
		for i := range sorted {
			if sorted[i].Asset == "" {
				sorted[i].Asset = asset
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			if !sorted[i].TS.Equal(sorted[j].TS) {
				return sorted[i].TS.Before(sorted[j].TS)
			}
			return sorted[i].ID < sorted[j].ID
		})
		out[asset] = sorted
	}
	return out
}

// Validate checks every lot in the batch and collects all violations:
//
//   - ts must be a valid (non-zero) timestamp
//   - action must be buy, sell, deposit or withdraw
//   - qty must be finite and non-zero, positive for buy/deposit and negative
//     for sell/withdraw
//   - buy requires a finite positive unit_cost_usd; withdraw forbids one
//
// Returns nil when the batch is valid, otherwise a *ValidationError with the
// complete list. Assets are visited in sorted symbol order so the violation
// list is deterministic.
func Validate(byAsset map[string][]model.Lot) error {
	var violations []Violation
	for _, asset := range sortedAssets(byAsset) {
		for _, l := range byAsset[asset] {
			violations = append(violations, validateLot(asset, l)...)
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateLot(asset string, l model.Lot) []Violation {
	var out []Violation
	add := func(format string, args ...any) {
		out = append(out, Violation{Asset: asset, LotID: l.ID, Message: fmt.Sprintf(format, args...)})
	}

	if l.TS.IsZero() {
		add("invalid date")
	}

	switch l.Action {
	case model.ActionBuy, model.ActionSell, model.ActionDeposit, model.ActionWithdraw:
	default:
		add("invalid action")
	}

	if math.IsNaN(l.Qty) || math.IsInf(l.Qty, 0) || l.Qty == 0 {
		add("qty must be non-zero number")
	} else if l.Action.IsSupply() && l.Qty < 0 {
		add("qty must be positive for %s", l.Action)
	} else if l.Action.IsConsuming() && l.Qty > 0 {
		add("qty must be negative for %s", l.Action)
	}

	if c := l.UnitCostUSD; c != nil && (math.IsNaN(*c) || math.IsInf(*c, 0) || *c <= 0) {
		add("unit_cost_usd must be a positive number")
	}
	if l.Action == model.ActionBuy && l.UnitCostUSD == nil {
		add("unit_cost_usd required for buy")
	}
	if l.Action == model.ActionWithdraw && l.UnitCostUSD != nil {
		add("unit_cost_usd must be empty for withdraw")
	}

	return out
}

// sortedAssets returns the map keys in ascending order. Per-asset processing
// always follows this order so behavior never depends on map iteration.
func sortedAssets[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
