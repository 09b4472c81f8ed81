package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/testutil"
)

func dailyBars(symbol string, days int) []model.Candle {
	bars := make([]model.Candle, 0, days)
	for i := 0; i < days; i++ {
		close := 100 + float64(i)
		bars = append(bars, testutil.DailyCandle(symbol, i, close-1, close, 10))
	}
	return bars
}

// TestMarketChangeService tests multi-horizon change derivation.
//
// WHY: The horizon lookups walk real daily history, so off-by-one bugs show
// up as a 7d change computed from the wrong day. Each horizon is pinned
// against a linear close series where the expected reference day is obvious.
func TestMarketChangeService(t *testing.T) {
	t.Run("derives 1d, 7d and 30d changes from daily bars", func(t *testing.T) {
		// Setup: closes 100..139 over 40 days
		exchange := testutil.NewMockExchangeClient()
		exchange.Klines = map[string][]model.Candle{"BTC": dailyBars("BTC", 40)}
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewMarketChangeService(exchange, repo, testutil.FixedClock())

		// Execute
		got, err := svc.Changes(context.Background(), "BTC")

		// Assert
		if err != nil {
			t.Fatalf("Changes() returned unexpected error: %v", err)
		}
		// Last close 139; references are day 38 (138), day 32 (132), day 9 (109).
		if !testutil.PtrEquals(got.Change1dPct, (139.0/138.0-1)*100, 1e-9) {
			t.Errorf("Unexpected 1d change: %v", got.Change1dPct)
		}
		if !testutil.PtrEquals(got.Change7dPct, (139.0/132.0-1)*100, 1e-9) {
			t.Errorf("Unexpected 7d change: %v", got.Change7dPct)
		}
		if !testutil.PtrEquals(got.Change30dPct, (139.0/109.0-1)*100, 1e-9) {
			t.Errorf("Unexpected 30d change: %v", got.Change30dPct)
		}
	})

	t.Run("short history falls back to the oldest bar", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Klines = map[string][]model.Candle{"BTC": dailyBars("BTC", 5)}
		svc := service.NewMarketChangeService(exchange, nil, testutil.FixedClock())

		got, err := svc.Changes(context.Background(), "BTC")

		if err != nil {
			t.Fatalf("Changes() returned unexpected error: %v", err)
		}
		// Only 5 days of history; 30d degrades to since-oldest (close 100).
		if !testutil.PtrEquals(got.Change30dPct, 4, 1e-9) {
			t.Errorf("Expected 30d fallback change 4%%, got %v", got.Change30dPct)
		}
	})

	t.Run("stablecoins report zero without hitting the exchange", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		svc := service.NewMarketChangeService(exchange, nil, testutil.FixedClock())

		got, err := svc.Changes(context.Background(), "usdt")

		if err != nil {
			t.Fatalf("Changes() returned unexpected error: %v", err)
		}
		if !testutil.PtrEquals(got.Change1dPct, 0, 0) || !testutil.PtrEquals(got.Change30dPct, 0, 0) {
			t.Errorf("Expected zero changes for a stablecoin, got %+v", got)
		}
		if exchange.KlinesCalls != 0 {
			t.Errorf("Expected no kline fetch for a stablecoin, got %d", exchange.KlinesCalls)
		}
	})

	t.Run("caches results within the ttl", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Klines = map[string][]model.Candle{"BTC": dailyBars("BTC", 10)}
		svc := service.NewMarketChangeService(exchange, nil, testutil.FixedClock())

		for i := 0; i < 3; i++ {
			if _, err := svc.Changes(context.Background(), "BTC"); err != nil {
				t.Fatalf("Changes() returned unexpected error: %v", err)
			}
		}

		if exchange.KlinesCalls != 1 {
			t.Errorf("Expected 1 kline fetch, got %d", exchange.KlinesCalls)
		}
	})

	t.Run("feed failure degrades to nil changes and is cached", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.KlinesErr = errors.New("rate limited")
		svc := service.NewMarketChangeService(exchange, nil, testutil.FixedClock())

		got, err := svc.Changes(context.Background(), "BTC")
		if err != nil {
			t.Fatalf("Expected degraded result, got error: %v", err)
		}
		if got.Change1dPct != nil || got.Change7dPct != nil || got.Change30dPct != nil {
			t.Errorf("Expected all-nil changes, got %+v", got)
		}

		if _, err := svc.Changes(context.Background(), "BTC"); err != nil {
			t.Fatalf("Changes() returned unexpected error: %v", err)
		}
		if exchange.KlinesCalls != 1 {
			t.Errorf("Expected failure to be cached, got %d fetches", exchange.KlinesCalls)
		}
	})

	t.Run("fetched bars land in the local candle cache", func(t *testing.T) {
		exchange := testutil.NewMockExchangeClient()
		exchange.Klines = map[string][]model.Candle{"BTC": dailyBars("BTC", 3)}
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewMarketChangeService(exchange, repo, testutil.FixedClock())

		if _, err := svc.Changes(context.Background(), "BTC"); err != nil {
			t.Fatalf("Changes() returned unexpected error: %v", err)
		}

		from := testutil.BaseTime.Truncate(24 * time.Hour)
		cached, err := repo.GetRange(context.Background(), "BTC", model.PeriodDaily, from, from.Add(3*24*time.Hour))
		if err != nil {
			t.Fatalf("GetRange() returned unexpected error: %v", err)
		}
		if len(cached) != 3 {
			t.Errorf("Expected 3 cached candles, got %d", len(cached))
		}
	})
}
