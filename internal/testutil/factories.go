package testutil

import (
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// BaseTime is the fixed reference instant test data is built around.
var BaseTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// LotBuilder provides a fluent interface for creating test lots.
//
// Example usage:
//
//	// Simple buy with defaults
//	lot := testutil.NewLot().Build()
//
//	// Customized lot
//	lot := testutil.NewLot().
//	    Sell(-0.5).
//	    WithAsset("ETH").
//	    DaysLater(3).
//	    Build()
type LotBuilder struct {
	lot model.Lot
}

// NewLot creates a LotBuilder for a 1.0 BTC buy at 100 USD.
func NewLot() *LotBuilder {
	return &LotBuilder{lot: model.Lot{
		Action:      model.ActionBuy,
		Asset:       "BTC",
		Qty:         1,
		UnitCostUSD: model.Float64Ptr(100),
		TS:          BaseTime,
	}}
}

// WithID sets an explicit id.
func (b *LotBuilder) WithID(id string) *LotBuilder {
	b.lot.ID = id
	return b
}

// WithAsset sets the asset symbol.
func (b *LotBuilder) WithAsset(asset string) *LotBuilder {
	b.lot.Asset = asset
	return b
}

// Buy makes the lot a buy of qty at cost.
func (b *LotBuilder) Buy(qty, cost float64) *LotBuilder {
	b.lot.Action = model.ActionBuy
	b.lot.Qty = qty
	b.lot.UnitCostUSD = model.Float64Ptr(cost)
	return b
}

// Sell makes the lot a sell of qty (negative).
func (b *LotBuilder) Sell(qty float64) *LotBuilder {
	b.lot.Action = model.ActionSell
	b.lot.Qty = qty
	b.lot.UnitCostUSD = nil
	return b
}

// Deposit makes the lot a deposit of qty with unknown cost.
func (b *LotBuilder) Deposit(qty float64) *LotBuilder {
	b.lot.Action = model.ActionDeposit
	b.lot.Qty = qty
	b.lot.UnitCostUSD = nil
	return b
}

// DepositAt makes the lot a deposit of qty with a known cost.
func (b *LotBuilder) DepositAt(qty, cost float64) *LotBuilder {
	b.lot.Action = model.ActionDeposit
	b.lot.Qty = qty
	b.lot.UnitCostUSD = model.Float64Ptr(cost)
	return b
}

// Withdraw makes the lot a withdrawal of qty (negative).
func (b *LotBuilder) Withdraw(qty float64) *LotBuilder {
	b.lot.Action = model.ActionWithdraw
	b.lot.Qty = qty
	b.lot.UnitCostUSD = nil
	return b
}

// At sets the lot timestamp.
func (b *LotBuilder) At(ts time.Time) *LotBuilder {
	b.lot.TS = ts
	return b
}

// DaysLater shifts the timestamp n days after BaseTime.
func (b *LotBuilder) DaysLater(n int) *LotBuilder {
	b.lot.TS = BaseTime.Add(time.Duration(n) * 24 * time.Hour)
	return b
}

// WithNote sets the free-text note.
func (b *LotBuilder) WithNote(note string) *LotBuilder {
	b.lot.Note = note
	return b
}

// Build returns the lot.
func (b *LotBuilder) Build() model.Lot {
	return b.lot
}

// DailyCandle creates a daily candle for the UTC day offset days after
// BaseTime's day, with symmetric high/low around close.
func DailyCandle(symbol string, daysAfter int, open, close, volume float64) model.Candle {
	day := BaseTime.Truncate(24 * time.Hour).Add(time.Duration(daysAfter) * 24 * time.Hour)
	high := close
	if open > close {
		high = open
	}
	low := close
	if open < close {
		low = open
	}
	return model.Candle{
		Symbol: symbol,
		Period: model.PeriodDaily,
		TS:     day,
		Open:   open,
		High:   high * 1.01,
		Low:    low * 0.99,
		Close:  close,
		Volume: volume,
	}
}

// IntradayCandle creates a 60min candle hoursAfter the start of BaseTime's
// UTC day.
func IntradayCandle(symbol string, hoursAfter int, close, volume float64) model.Candle {
	ts := BaseTime.Truncate(24 * time.Hour).Add(time.Duration(hoursAfter) * time.Hour)
	return model.Candle{
		Symbol: symbol,
		Period: model.PeriodIntraday,
		TS:     ts,
		Open:   close * 0.995,
		High:   close * 1.01,
		Low:    close * 0.99,
		Close:  close,
		Volume: volume,
	}
}
