package model

import "time"

// Candle periods stored in the local candle cache. Daily candles back the
// close baseline and backfill; intraday (60min) candles back VWAP baselines.
const (
	PeriodDaily    = "1day"
	PeriodIntraday = "60min"
)

// Candle is one OHLCV bar for a USDT-quoted pair. TS is the bar start, UTC.
type Candle struct {
	Symbol string    `json:"symbol"`
	Period string    `json:"period"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"vol"`
}

// TypicalPrice is the (high+low+close)/3 price used for VWAP baselines.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// DayPct is the intra-bar change percentage, (close/open - 1) * 100.
// Returns nil when the open is zero or missing.
func (c Candle) DayPct() *float64 {
	if c.Open == 0 {
		return nil
	}
	pct := (c.Close/c.Open - 1) * 100
	return &pct
}
