package lotengine

import (
	"fmt"
	"math"
	"strings"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// ReconciledLot is a lot annotated with the quantity left after LOFO
// consumption. Remaining is meaningful for buy/deposit lots; consuming lots
// carry zero.
type ReconciledLot struct {
	model.Lot
	Remaining float64 `json:"remaining"`
}

// Consumed reports whether any later sell/withdraw has drawn from this
// supply lot. Consumed lots are immutable: edits and deletes must be
// rejected to preserve historical accounting integrity.
func (r ReconciledLot) Consumed() bool {
	return r.Action.IsSupply() && r.Remaining < r.Qty-qtyTolerance
}

// AssetSummary is the per-asset reconciliation outcome.
//
// AvgCostUSD is the cost-weighted average over remaining costed supply only:
// deposits with unknown cost count toward TotalQty but never toward the
// average. UnrealizedPLUSD is nil when no market price was supplied.
type AssetSummary struct {
	TotalQty        float64  `json:"total_qty"`
	AvgCostUSD      *float64 `json:"avg_cost_usd"`
	UnrealizedPLUSD *float64 `json:"unrealized_pl_usd"`
	RemainingLots   int      `json:"remaining_lots"`
}

// ReconciliationError reports a sell/withdraw that could not be satisfied by
// the supply available at its point in chronological order.
type ReconciliationError struct {
	Asset  string
	LotID  string
	Action model.Action
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("negative inventory for %s on %s id=%s", e.Asset, e.Action, e.LotID)
}

// BatchReconciliationError bundles every per-asset failure of one
// reconciliation pass. Callers reject the attempted change as a whole.
type BatchReconciliationError struct {
	Failures []ReconciliationError
}

func (e *BatchReconciliationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for i := range e.Failures {
		msgs = append(msgs, e.Failures[i].Error())
	}
	return "reconciliation failed: " + strings.Join(msgs, "; ")
}

// Result is the outcome of reconciling a full ledger. Assets that failed
// reconciliation appear in neither map.
type Result struct {
	ByAsset   map[string][]ReconciledLot
	Summaries map[string]AssetSummary
}

// RemainingByID maps every supply lot id to its remaining quantity.
// Used by edit/delete dry runs to detect consumed lots.
func (r *Result) RemainingByID() map[string]float64 {
	out := make(map[string]float64)
	for _, lots := range r.ByAsset {
		for _, l := range lots {
			if l.Action.IsSupply() {
				out[l.ID] = l.Remaining
			}
		}
	}
	return out
}

// supplyEntry tracks one buy/deposit lot during reconciliation. A nil-cost
// deposit gets +Inf cost so it is always consumed after every costed lot.
type supplyEntry struct {
	lot       model.Lot
	remaining float64
	cost      float64
}

// Reconcile applies LOFO consumption to every asset independently and
// returns the remaining inventory plus per-asset summaries.
//
// Lots must already be normalized and sorted (see NormalizeAndSort); the
// input is not mutated. prices supplies optional market prices keyed by
// asset symbol for unrealized P/L; it may be nil.
//
// Assets are processed in sorted symbol order. Failures are collected across
// all assets and returned together; callers treat any failure as rejecting
// the whole batch, so a partial Result is never committed.
func Reconcile(byAsset map[string][]model.Lot, prices map[string]float64) (*Result, []ReconciliationError) {
	result := &Result{
		ByAsset:   make(map[string][]ReconciledLot, len(byAsset)),
		Summaries: make(map[string]AssetSummary, len(byAsset)),
	}
	var errs []ReconciliationError

	for _, asset := range sortedAssets(byAsset) {
		lots := byAsset[asset]

		supply := make([]*supplyEntry, 0, len(lots))
		byID := make(map[string]*supplyEntry, len(lots))
		for _, l := range lots {
			if !l.Action.IsSupply() {
				continue
			}
			cost := math.Inf(1)
			if l.UnitCostUSD != nil {
				cost = *l.UnitCostUSD
			}
			e := &supplyEntry{lot: l, remaining: l.Qty, cost: cost}
			supply = append(supply, e)
			byID[l.ID] = e
		}

		failed := false
		for _, l := range lots {
			if !l.Action.IsConsuming() {
				continue
			}
			if unmet := draw(supply, math.Abs(l.Qty)); unmet > qtyTolerance {
				errs = append(errs, ReconciliationError{Asset: asset, LotID: l.ID, Action: l.Action})
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		annotated := make([]ReconciledLot, 0, len(lots))
		for _, l := range lots {
			rl := ReconciledLot{Lot: l}
			if e, ok := byID[l.ID]; ok {
				rl.Remaining = e.remaining
			}
			annotated = append(annotated, rl)
		}
		result.ByAsset[asset] = annotated

		price, hasPrice := 0.0, false
		if prices != nil {
			price, hasPrice = prices[asset]
		}
		result.Summaries[asset] = summarize(supply, price, hasPrice)
	}

	return result, errs
}

// draw satisfies demand from the cheapest available supply first, re-picking
// the lowest-cost entry after every draw; ties break by (ts, id) of the
// supply lot. Returns the unmet demand, zero when fully satisfied.
func draw(supply []*supplyEntry, demand float64) float64 {
	for demand > qtyTolerance {
		best := pickCheapest(supply)
		if best == nil {
			break
		}
		take := math.Min(best.remaining, demand)
		best.remaining -= take
		demand -= take
	}
	return demand
}

func pickCheapest(supply []*supplyEntry) *supplyEntry {
	var best *supplyEntry
	for _, e := range supply {
		if e.remaining <= qtyTolerance {
			continue
		}
		if best == nil || less(e, best) {
			best = e
		}
	}
	return best
}

func less(a, b *supplyEntry) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if !a.lot.TS.Equal(b.lot.TS) {
		return a.lot.TS.Before(b.lot.TS)
	}
	return a.lot.ID < b.lot.ID
}

func summarize(supply []*supplyEntry, price float64, hasPrice bool) AssetSummary {
	var totalQty, costedQty, costSum float64
	remainingLots := 0
	for _, e := range supply {
		if e.remaining <= qtyTolerance {
			continue
		}
		remainingLots++
		totalQty += e.remaining
		if !math.IsInf(e.cost, 1) {
			costedQty += e.remaining
			costSum += e.remaining * e.cost
		}
	}

	sum := AssetSummary{TotalQty: totalQty, RemainingLots: remainingLots}
	if costedQty > 0 {
		sum.AvgCostUSD = model.Float64Ptr(costSum / costedQty)
	}
	if hasPrice {
		pl := 0.0
		if costedQty > 0 {
			pl = (price - *sum.AvgCostUSD) * costedQty
		}
		sum.UnrealizedPLUSD = &pl
	}
	return sum
}
