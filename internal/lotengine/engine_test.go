package lotengine_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/lotengine"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/testutil"
)

// TestNormalizeAndSort tests ledger normalization.
//
// WHY: Every validation and reconciliation pass assumes lots are keyed by a
// consistent asset symbol and ordered chronologically. Out-of-order input
// must come out sorted by (ts, id) without mutating the caller's slices.
func TestNormalizeAndSort(t *testing.T) {
	t.Run("sorts by timestamp then id", func(t *testing.T) {
		// Setup
		lots := map[string][]model.Lot{
			"BTC": {
				testutil.NewLot().WithID("000003").DaysLater(2).Build(),
				testutil.NewLot().WithID("000002").Build(),
				testutil.NewLot().WithID("000001").Build(),
			},
		}

		// Execute
		normalized := lotengine.NormalizeAndSort(lots)

		// Assert
		got := normalized["BTC"]
		if len(got) != 3 {
			t.Fatalf("Expected 3 lots, got %d", len(got))
		}
		wantOrder := []string{"000001", "000002", "000003"}
		for i, want := range wantOrder {
			if got[i].ID != want {
				t.Errorf("Position %d: expected id %s, got %s", i, want, got[i].ID)
			}
		}
	})

	t.Run("fills asset from map key", func(t *testing.T) {
		lot := testutil.NewLot().WithID("000001").Build()
		lot.Asset = ""

		normalized := lotengine.NormalizeAndSort(map[string][]model.Lot{"ETH": {lot}})

		if normalized["ETH"][0].Asset != "ETH" {
			t.Errorf("Expected asset ETH, got %q", normalized["ETH"][0].Asset)
		}
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		original := testutil.NewLot().WithID("000002").DaysLater(1).Build()
		lots := map[string][]model.Lot{
			"BTC": {
				original,
				testutil.NewLot().WithID("000001").Build(),
			},
		}

		lotengine.NormalizeAndSort(lots)

		if lots["BTC"][0].ID != "000002" {
			t.Errorf("Input slice was reordered, first id is now %s", lots["BTC"][0].ID)
		}
	})
}

// TestValidate tests the per-lot structural rules.
//
// WHY: The ledger is append-mostly accounting history; a single malformed
// lot (wrong sign, missing buy cost, cost on a withdrawal) silently corrupts
// every downstream average and P/L figure. Violations must also be collected
// across the whole batch so a bulk import reports everything wrong at once.
func TestValidate(t *testing.T) {
	t.Run("accepts a well-formed ledger", func(t *testing.T) {
		lots := lotengine.NormalizeAndSort(map[string][]model.Lot{
			"BTC": {
				testutil.NewLot().WithID("000001").Buy(1, 100).Build(),
				testutil.NewLot().WithID("000002").Deposit(0.5).DaysLater(1).Build(),
				testutil.NewLot().WithID("000003").Sell(-0.25).DaysLater(2).Build(),
			},
		})

		if err := lotengine.Validate(lots); err != nil {
			t.Fatalf("Validate() returned unexpected error: %v", err)
		}
	})

	t.Run("rejects wrong sign for action", func(t *testing.T) {
		buy := testutil.NewLot().WithID("000001").Buy(1, 100).Build()
		buy.Qty = -1

		err := lotengine.Validate(lotengine.NormalizeAndSort(map[string][]model.Lot{"BTC": {buy}}))

		var vErr *lotengine.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
	})

	t.Run("rejects buy without cost", func(t *testing.T) {
		buy := testutil.NewLot().WithID("000001").Buy(1, 100).Build()
		buy.UnitCostUSD = nil

		err := lotengine.Validate(lotengine.NormalizeAndSort(map[string][]model.Lot{"BTC": {buy}}))

		if err == nil || !strings.Contains(err.Error(), "unit_cost_usd") {
			t.Fatalf("Expected missing cost violation, got %v", err)
		}
	})

	t.Run("rejects cost on withdraw", func(t *testing.T) {
		withdraw := testutil.NewLot().WithID("000001").Withdraw(-1).Build()
		withdraw.UnitCostUSD = model.Float64Ptr(50)

		err := lotengine.Validate(lotengine.NormalizeAndSort(map[string][]model.Lot{"BTC": {withdraw}}))

		if err == nil {
			t.Fatal("Expected validation error for costed withdraw")
		}
	})

	t.Run("rejects zero timestamp", func(t *testing.T) {
		lot := testutil.NewLot().WithID("000001").At(time.Time{}).Build()

		err := lotengine.Validate(lotengine.NormalizeAndSort(map[string][]model.Lot{"BTC": {lot}}))

		if err == nil {
			t.Fatal("Expected validation error for zero timestamp")
		}
	})

	t.Run("collects violations across assets", func(t *testing.T) {
		// Setup: two broken lots in two assets
		badBuy := testutil.NewLot().WithID("000001").Buy(1, 100).Build()
		badBuy.UnitCostUSD = nil
		badSell := testutil.NewLot().WithID("000002").WithAsset("ETH").Sell(2).Build()

		// Execute
		err := lotengine.Validate(lotengine.NormalizeAndSort(map[string][]model.Lot{
			"BTC": {badBuy},
			"ETH": {badSell},
		}))

		// Assert
		var vErr *lotengine.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
		if len(vErr.Violations) != 2 {
			t.Errorf("Expected 2 violations, got %d: %v", len(vErr.Violations), vErr.Violations)
		}
	})
}
