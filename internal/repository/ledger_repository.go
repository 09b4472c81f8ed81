package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// LedgerStore is a physical encoding of the persisted ledger. Both
// implementations (JSON document, CSV table with a JSON meta sidecar) must
// round-trip an identical set of lots.
type LedgerStore interface {
	// LoadAll reads the committed ledger. A missing file yields an empty
	// ledger, not an error.
	LoadAll() (*model.Ledger, error)

	// SaveAll atomically replaces the committed ledger.
	SaveAll(ledger *model.Ledger) error

	// Backend names the encoding ("json" or "csv") for API metadata.
	Backend() string
}

// NewLedgerStore selects a ledger store by backend name.
func NewLedgerStore(dataDir, backend string, writer *atomicfile.Writer) (LedgerStore, error) {
	switch backend {
	case "json":
		return NewJSONLedgerStore(dataDir, writer), nil
	case "csv":
		return NewCSVLedgerStore(dataDir, writer), nil
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownBackend, backend)
	}
}

// LedgerRepository owns the persisted cost-basis ledger. All mutations run
// under a single in-process write lock so that two near-simultaneous
// load→validate→reconcile→persist sequences cannot interleave and lose
// updates. Reads are unsynchronized: thanks to the store's atomic replace
// they observe either the old or the new committed state, never a torn file,
// though a read that races a write may return the pre-write version.
type LedgerRepository struct {
	store LedgerStore
	mu    sync.Mutex
	now   func() time.Time
}

// NewLedgerRepository creates a new LedgerRepository over the given store.
func NewLedgerRepository(store LedgerStore) *LedgerRepository {
	return &LedgerRepository{store: store, now: time.Now}
}

// SetClock overrides the repository clock. Used by tests to make the
// persisted updated_at deterministic.
func (r *LedgerRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Backend names the underlying physical encoding.
func (r *LedgerRepository) Backend() string {
	return r.store.Backend()
}

// LoadAll returns a snapshot of the committed ledger. Callers must not use
// it as the basis for a mutation without going through Update, which
// re-loads under the write lock.
func (r *LedgerRepository) LoadAll() (*model.Ledger, error) {
	return r.store.LoadAll()
}

// Update runs one transactional mutation: the ledger is re-loaded under the
// write lock, mutate is applied to the in-memory copy, and only if mutate
// returns nil is the result committed. On any error nothing is written and
// the previously committed file remains valid.
//
// mutate is expected to leave the ledger fully validated and reconciled;
// the ledger service composes the lot engine into this callback.
func (r *LedgerRepository) Update(mutate func(ledger *model.Ledger) error) (*model.Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, err := r.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	if err := mutate(ledger); err != nil {
		return nil, err
	}

	ledger.Meta.Strategy = "LOFO"
	ledger.Meta.UpdatedAt = r.now().UTC()

	if err := r.store.SaveAll(ledger); err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}
	return ledger, nil
}
