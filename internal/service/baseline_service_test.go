package service_test

import (
	"context"
	"testing"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/testutil"
)

// TestBaselineService tests reference price derivation from cached candles.
//
// WHY: "How did today do against last Tuesday" only means something if the
// baseline is deterministic. Close mode must read exactly the requested UTC
// day, and vwap must weight by volume with a documented fallback when no
// intraday bars are cached.
func TestBaselineService(t *testing.T) {
	t.Run("close mode returns the daily close", func(t *testing.T) {
		// Setup
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewBaselineService(repo)
		testutil.SeedCandles(t, repo,
			testutil.DailyCandle("BTC", 0, 100, 110, 10),
			testutil.DailyCandle("BTC", 1, 110, 120, 10),
		)

		// Execute: BaseTime is midday, the baseline is that day's close
		got, err := svc.BaselinePrice(context.Background(), "BTC", testutil.BaseTime, service.BaselineClose)

		// Assert
		if err != nil {
			t.Fatalf("BaselinePrice() returned unexpected error: %v", err)
		}
		if !testutil.PtrEquals(got, 110, 1e-9) {
			t.Errorf("Expected close 110, got %v", got)
		}
	})

	t.Run("vwap mode weights intraday typical prices by volume", func(t *testing.T) {
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewBaselineService(repo)
		testutil.SeedCandles(t, repo,
			testutil.IntradayCandle("BTC", 0, 100, 10),
			testutil.IntradayCandle("BTC", 1, 200, 30),
			testutil.IntradayCandle("BTC", 2, 500, 0), // zero volume, ignored
		)

		got, err := svc.BaselinePrice(context.Background(), "BTC", testutil.BaseTime, service.BaselineVWAP)

		if err != nil {
			t.Fatalf("BaselinePrice() returned unexpected error: %v", err)
		}
		// (100*10 + 200*30) / 40 = 175
		if !testutil.PtrEquals(got, 175, 1e-9) {
			t.Errorf("Expected vwap 175, got %v", got)
		}
	})

	t.Run("vwap falls back to the daily typical price", func(t *testing.T) {
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewBaselineService(repo)
		daily := testutil.DailyCandle("BTC", 0, 100, 110, 10)
		testutil.SeedCandles(t, repo, daily)

		got, err := svc.BaselinePrice(context.Background(), "BTC", testutil.BaseTime, service.BaselineVWAP)

		if err != nil {
			t.Fatalf("BaselinePrice() returned unexpected error: %v", err)
		}
		if !testutil.PtrEquals(got, daily.TypicalPrice(), 1e-9) {
			t.Errorf("Expected daily typical price %v, got %v", daily.TypicalPrice(), got)
		}
	})

	t.Run("no cached candles yield nil without error", func(t *testing.T) {
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewBaselineService(repo)

		for _, mode := range []service.BaselineMode{service.BaselineClose, service.BaselineVWAP} {
			got, err := svc.BaselinePrice(context.Background(), "BTC", testutil.BaseTime, mode)
			if err != nil {
				t.Fatalf("BaselinePrice(%s) returned unexpected error: %v", mode, err)
			}
			if got != nil {
				t.Errorf("Expected nil baseline for %s, got %v", mode, *got)
			}
		}
	})

	t.Run("unknown mode returns an error", func(t *testing.T) {
		repo := repository.NewCandleRepository(testutil.SetupTestDB(t))
		svc := service.NewBaselineService(repo)

		if _, err := svc.BaselinePrice(context.Background(), "BTC", testutil.BaseTime, "median"); err == nil {
			t.Fatal("Expected error for unknown mode")
		}
	})
}

// TestPctChange tests the shared percent-change helper.
//
// WHY: Zero or negative prices are sentinel values from sparse history; a
// division against them must come back nil rather than Inf or a garbage
// percentage.
func TestPctChange(t *testing.T) {
	if got := service.PctChange(150, 100); !testutil.PtrEquals(got, 50, 1e-9) {
		t.Errorf("Expected +50%%, got %v", got)
	}
	if got := service.PctChange(50, 100); !testutil.PtrEquals(got, -50, 1e-9) {
		t.Errorf("Expected -50%%, got %v", got)
	}
	if got := service.PctChange(100, 0); got != nil {
		t.Errorf("Expected nil for zero baseline, got %v", *got)
	}
	if got := service.PctChange(0, 100); got != nil {
		t.Errorf("Expected nil for zero current, got %v", *got)
	}
	if got := service.PctChange(-1, -1); got != nil {
		t.Errorf("Expected nil for negative prices, got %v", *got)
	}
}
