package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/lotengine"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/testutil"
)

func quote(price, dayPct float64) model.Quote {
	return model.Quote{Price: model.Float64Ptr(price), DayPct: model.Float64Ptr(dayPct)}
}

func baseInput() service.SnapshotInput {
	return service.SnapshotInput{
		Balances:      map[string]float64{},
		Prices:        map[string]model.Quote{},
		Summaries:     map[string]lotengine.AssetSummary{},
		RefFiat:       "USD",
		AlwaysInclude: map[string]bool{},
		Now:           testutil.BaseTime,
	}
}

// TestComputeSnapshot tests the pure valuation calculation.
//
// WHY: This function is the single place balances, prices and cost basis
// meet. Its filtering rules (no price, dust threshold, force-include), the
// value-weighted day change and the drift flag all feed the UI directly;
// each rule is pinned here against hand-computed numbers.
func TestComputeSnapshot(t *testing.T) {
	t.Run("empty balances yield a zero snapshot", func(t *testing.T) {
		got := service.ComputeSnapshot(baseInput())

		if got.TotalValueUSD != 0 || got.TotalChange24hPct != 0 {
			t.Errorf("Expected zero totals, got %+v", got)
		}
		if len(got.Positions) != 0 {
			t.Errorf("Expected no positions, got %d", len(got.Positions))
		}
		if got.Time != testutil.BaseTime.Unix() || got.RefFiat != "USD" {
			t.Errorf("Unexpected envelope: %+v", got)
		}
	})

	t.Run("values positions and sorts by value descending", func(t *testing.T) {
		// Setup
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 0.5, "ETH": 10}
		in.Prices = map[string]model.Quote{
			"BTC": quote(100000, 2),
			"ETH": quote(2000, -1),
		}

		// Execute
		got := service.ComputeSnapshot(in)

		// Assert
		if got.TotalValueUSD != 70000 {
			t.Errorf("Expected total 70000, got %v", got.TotalValueUSD)
		}
		if len(got.Positions) != 2 || got.Positions[0].Symbol != "BTC" {
			t.Fatalf("Expected BTC first by value, got %+v", got.Positions)
		}
		// (50000*2 + 20000*-1) / 70000
		want := (50000.0*2 - 20000.0) / 70000.0
		if diff := got.TotalChange24hPct - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Expected weighted change %v, got %v", want, got.TotalChange24hPct)
		}
	})

	t.Run("skips unpriced symbols unless force-included", func(t *testing.T) {
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 1, "XRARE": 5}
		in.Prices = map[string]model.Quote{"BTC": quote(100, 0)}

		got := service.ComputeSnapshot(in)
		if len(got.Positions) != 1 || got.Positions[0].Symbol != "BTC" {
			t.Fatalf("Expected only BTC, got %+v", got.Positions)
		}

		in.AlwaysInclude = map[string]bool{"XRARE": true}
		got = service.ComputeSnapshot(in)
		if len(got.Positions) != 2 {
			t.Fatalf("Expected forced symbol included, got %+v", got.Positions)
		}
		var forced model.Position
		for _, p := range got.Positions {
			if p.Symbol == "XRARE" {
				forced = p
			}
		}
		if forced.Price != nil || forced.Value != 0 {
			t.Errorf("Forced unpriced position should carry no value: %+v", forced)
		}
	})

	t.Run("drops dust below the threshold unless force-included", func(t *testing.T) {
		in := baseInput()
		in.MinUSDIgnore = 10
		in.Balances = map[string]float64{"BTC": 1, "DUST": 1}
		in.Prices = map[string]model.Quote{
			"BTC":  quote(100, 0),
			"DUST": quote(0.5, 0),
		}

		got := service.ComputeSnapshot(in)
		if len(got.Positions) != 1 {
			t.Fatalf("Expected dust filtered, got %+v", got.Positions)
		}
		if got.TotalValueUSD != 100 {
			t.Errorf("Dust leaked into the total: %v", got.TotalValueUSD)
		}

		in.AlwaysInclude = map[string]bool{"DUST": true}
		got = service.ComputeSnapshot(in)
		if len(got.Positions) != 2 {
			t.Errorf("Expected forced dust kept, got %+v", got.Positions)
		}
	})

	t.Run("unknown day change contributes value but not change", func(t *testing.T) {
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 1, "ETH": 1}
		in.Prices = map[string]model.Quote{
			"BTC": quote(100, 10),
			"ETH": {Price: model.Float64Ptr(100)}, // no day change
		}

		got := service.ComputeSnapshot(in)

		// Numerator only from BTC, denominator from both.
		if diff := got.TotalChange24hPct - 5; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Expected diluted change 5, got %v", got.TotalChange24hPct)
		}
	})

	t.Run("computes pnl from average cost", func(t *testing.T) {
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 1}
		in.Prices = map[string]model.Quote{"BTC": quote(150, 0)}
		in.Summaries = map[string]lotengine.AssetSummary{
			"BTC": {TotalQty: 1, AvgCostUSD: model.Float64Ptr(100)},
		}

		got := service.ComputeSnapshot(in)

		if !testutil.PtrEquals(got.Positions[0].PnlPct, 50, 1e-9) {
			t.Errorf("Expected pnl 50%%, got %v", got.Positions[0].PnlPct)
		}
	})

	t.Run("flags balance drift beyond tolerance", func(t *testing.T) {
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 1, "ETH": 2}
		in.Prices = map[string]model.Quote{"BTC": quote(100, 0), "ETH": quote(100, 0)}
		in.Summaries = map[string]lotengine.AssetSummary{
			"BTC": {TotalQty: 1},   // matches
			"ETH": {TotalQty: 1.5}, // ledger disagrees with exchange
		}

		got := service.ComputeSnapshot(in)

		for _, p := range got.Positions {
			switch p.Symbol {
			case "BTC":
				if p.Unreconciled {
					t.Error("BTC should be reconciled")
				}
			case "ETH":
				if !p.Unreconciled {
					t.Error("ETH should be flagged unreconciled")
				}
			}
		}
	})

	t.Run("ignores zero and negative balances", func(t *testing.T) {
		in := baseInput()
		in.Balances = map[string]float64{"BTC": 0, "ETH": -1}
		in.Prices = map[string]model.Quote{"BTC": quote(100, 0), "ETH": quote(100, 0)}

		got := service.ComputeSnapshot(in)

		if len(got.Positions) != 0 {
			t.Errorf("Expected no positions, got %+v", got.Positions)
		}
	})
}

// TestSnapshotService_Capture tests the live capture path.
//
// WHY: Capture stitches together the exchange, the ledger and the history
// file. A dead ticker feed must degrade to a price-less snapshot (balances
// are still worth recording); a dead balance feed must fail loudly.
func TestSnapshotService_Capture(t *testing.T) {
	t.Run("captures and appends to history", func(t *testing.T) {
		// Setup
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"BTC": 1}
		exchange.Quotes = map[string]model.Quote{"BTC": quote(100, 1)}
		svc, ledgerSvc := testutil.NewTestSnapshotService(t, exchange)
		testutil.SeedLots(t, ledgerSvc, testutil.NewLot().Buy(1, 50).Build())

		// Execute
		snapshot, err := svc.Capture(context.Background())

		// Assert
		if err != nil {
			t.Fatalf("Capture() returned unexpected error: %v", err)
		}
		if snapshot.TotalValueUSD != 100 {
			t.Errorf("Expected total 100, got %v", snapshot.TotalValueUSD)
		}
		if !testutil.PtrEquals(snapshot.Positions[0].PnlPct, 100, 1e-9) {
			t.Errorf("Expected pnl 100%%, got %v", snapshot.Positions[0].PnlPct)
		}
		latest, err := svc.Latest()
		if err != nil {
			t.Fatalf("Latest() returned unexpected error: %v", err)
		}
		if latest.Time != snapshot.Time {
			t.Error("Captured snapshot not in history")
		}
	})

	t.Run("quote failure degrades to a price-less capture", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"BTC": 1}
		exchange.QuotesErr = errors.New("feed down")
		svc, _ := testutil.NewTestSnapshotService(t, exchange)

		snapshot, err := svc.Capture(context.Background())

		if err != nil {
			t.Fatalf("Capture() returned unexpected error: %v", err)
		}
		if len(snapshot.Positions) != 0 || snapshot.TotalValueUSD != 0 {
			t.Errorf("Expected empty snapshot without prices, got %+v", snapshot)
		}
	})

	t.Run("balance failure fails the capture", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.BalancesErr = errors.New("auth rejected")
		svc, _ := testutil.NewTestSnapshotService(t, exchange)

		if _, err := svc.Capture(context.Background()); err == nil {
			t.Fatal("Expected capture to fail when balances are unavailable")
		}
	})

	t.Run("latest prices come from the newest snapshot", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"BTC": 1}
		exchange.Quotes = map[string]model.Quote{"BTC": quote(123, 0)}
		svc, _ := testutil.NewTestSnapshotService(t, exchange)

		if _, err := svc.Capture(context.Background()); err != nil {
			t.Fatalf("Capture() returned unexpected error: %v", err)
		}

		prices := svc.LatestPrices()
		if prices["BTC"] != 123 {
			t.Errorf("Expected price 123, got %v", prices["BTC"])
		}
	})
}

// TestSnapshotService_Backfill tests history seeding from daily candles.
//
// WHY: A fresh install with an old portfolio would otherwise chart from
// today only. Backfill must build one snapshot per day from kline closes,
// and must refuse to run over an existing history.
func TestSnapshotService_Backfill(t *testing.T) {
	t.Run("seeds one snapshot per day", func(t *testing.T) {
		// Setup: three days of BTC daily bars
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"BTC": 2}
		exchange.Klines = map[string][]model.Candle{
			"BTC": {
				testutil.DailyCandle("BTC", 0, 100, 110, 10),
				testutil.DailyCandle("BTC", 1, 110, 120, 10),
				testutil.DailyCandle("BTC", 2, 120, 130, 10),
			},
		}
		svc, _ := testutil.NewTestSnapshotService(t, exchange)

		// Execute
		created, err := svc.Backfill(context.Background(), 3)

		// Assert
		if err != nil {
			t.Fatalf("Backfill() returned unexpected error: %v", err)
		}
		if created != 3 {
			t.Fatalf("Expected 3 snapshots, got %d", created)
		}
		history, err := svc.History(10)
		if err != nil {
			t.Fatalf("History() returned unexpected error: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("Expected 3 snapshots in history, got %d", len(history))
		}
		// Oldest first, valued at that day's close.
		if history[0].TotalValueUSD != 220 || history[2].TotalValueUSD != 260 {
			t.Errorf("Unexpected valuations: first=%v last=%v",
				history[0].TotalValueUSD, history[2].TotalValueUSD)
		}
	})

	t.Run("does nothing when history exists", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"BTC": 1}
		exchange.Quotes = map[string]model.Quote{"BTC": quote(100, 0)}
		svc, _ := testutil.NewTestSnapshotService(t, exchange)
		if _, err := svc.Capture(context.Background()); err != nil {
			t.Fatalf("Capture() returned unexpected error: %v", err)
		}

		created, err := svc.Backfill(context.Background(), 30)

		if err != nil {
			t.Fatalf("Backfill() returned unexpected error: %v", err)
		}
		if created != 0 {
			t.Errorf("Expected no backfill over existing history, got %d", created)
		}
	})

	t.Run("stablecoin balances are valued at one", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Balances = map[string]float64{"USDT": 500, "BTC": 1}
		exchange.Klines = map[string][]model.Candle{
			"BTC": {testutil.DailyCandle("BTC", 0, 100, 110, 10)},
		}
		svc, _ := testutil.NewTestSnapshotService(t, exchange)

		created, err := svc.Backfill(context.Background(), 1)

		if err != nil {
			t.Fatalf("Backfill() returned unexpected error: %v", err)
		}
		if created != 1 {
			t.Fatalf("Expected 1 snapshot, got %d", created)
		}
		history, err := svc.History(1)
		if err != nil {
			t.Fatalf("History() returned unexpected error: %v", err)
		}
		if history[0].TotalValueUSD != 610 {
			t.Errorf("Expected 110 BTC + 500 USDT = 610, got %v", history[0].TotalValueUSD)
		}
	})
}
