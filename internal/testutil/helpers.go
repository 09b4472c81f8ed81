package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
)

// FixedClock returns a clock function pinned to BaseTime.
func FixedClock() func() time.Time {
	return func() time.Time { return BaseTime }
}

// NewTestLedgerRepository creates a ledger repository over a temp directory
// with a deterministic clock.
func NewTestLedgerRepository(t *testing.T, backend string) *repository.LedgerRepository {
	t.Helper()

	store, err := repository.NewLedgerStore(t.TempDir(), backend, atomicfile.NewWriter())
	if err != nil {
		t.Fatalf("Failed to create ledger store: %v", err)
	}
	repo := repository.NewLedgerRepository(store)
	repo.SetClock(FixedClock())
	return repo
}

// NewTestLedgerService creates a ledger service backed by a temp-dir store.
func NewTestLedgerService(t *testing.T, backend string) *service.LedgerService {
	t.Helper()
	return service.NewLedgerService(NewTestLedgerRepository(t, backend))
}

// SeedLots imports the given lots through the service so they go through the
// same validate-and-reconcile path as production writes.
func SeedLots(t *testing.T, svc *service.LedgerService, lots ...model.Lot) {
	t.Helper()

	if _, err := svc.ImportLots(lots, false); err != nil {
		t.Fatalf("Failed to seed lots: %v", err)
	}
}

// NewTestSnapshotHistoryRepository creates a snapshot history repository over
// a temp directory.
func NewTestSnapshotHistoryRepository(t *testing.T) *repository.SnapshotHistoryRepository {
	t.Helper()
	return repository.NewSnapshotHistoryRepository(t.TempDir(), atomicfile.NewWriter())
}

// NewTestSnapshotService wires a snapshot service around a mock exchange, a
// fresh ledger and history, and an in-memory candle cache. minUSDIgnore is
// zero so small test positions are not filtered; tests that exercise the
// filter construct the service directly.
func NewTestSnapshotService(t *testing.T, exchange *MockExchangeClient) (*service.SnapshotService, *service.LedgerService) {
	t.Helper()

	ledgerService := NewTestLedgerService(t, "json")
	historyRepo := NewTestSnapshotHistoryRepository(t)
	candleRepo := repository.NewCandleRepository(SetupTestDB(t))

	svc := service.NewSnapshotService(exchange, ledgerService, historyRepo, candleRepo, "USD", 0, nil)
	svc.SetClock(FixedClock())
	return svc, ledgerService
}

// SeedCandles upserts candles into a candle repository.
func SeedCandles(t *testing.T, repo *repository.CandleRepository, candles ...model.Candle) {
	t.Helper()

	if err := repo.Upsert(context.Background(), candles); err != nil {
		t.Fatalf("Failed to seed candles: %v", err)
	}
}

// PtrEquals compares a *float64 against an expected value within eps.
func PtrEquals(ptr *float64, want, eps float64) bool {
	if ptr == nil {
		return false
	}
	diff := *ptr - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= eps
}
