package model

// Quote is a live market quote for one asset: the USDT-referenced last price
// and the 24h change percentage. Either field may be unknown.
type Quote struct {
	Price  *float64 `json:"price"`
	DayPct *float64 `json:"day_pct"`
}

// Position is one valued holding inside a snapshot. Price, DayPct and PnlPct
// are nil when the underlying data is unknown; Unreconciled flags a live
// balance that disagrees with the ledger's reconciled quantity.
type Position struct {
	Symbol       string   `json:"symbol"`
	Free         float64  `json:"free"`
	Price        *float64 `json:"price"`
	Value        float64  `json:"value"`
	DayPct       *float64 `json:"day_pct"`
	PnlPct       *float64 `json:"pnl_pct"`
	Unreconciled bool     `json:"unreconciled"`
}

// Snapshot is a point-in-time valuation of the whole portfolio. Snapshots are
// immutable once created and appended to a bounded history.
type Snapshot struct {
	Time              int64      `json:"time"`
	RefFiat           string     `json:"ref_fiat"`
	TotalValueUSD     float64    `json:"total_value_usd"`
	TotalChange24hPct float64    `json:"total_change_24h_pct"`
	Positions         []Position `json:"positions"`
}
