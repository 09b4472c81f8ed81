package repository

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

const snapshotHistoryFile = "state.json"

// MaxSnapshotHistory bounds the snapshot ring: enough room for roughly one
// snapshot per day of backfill plus live samples. The oldest entries are
// evicted first.
const MaxSnapshotHistory = 400

// historyState is the persisted shape of the snapshot history file.
type historyState struct {
	History []model.Snapshot `json:"history"`
}

// SnapshotHistoryRepository owns the bounded ring of valuation snapshots,
// persisted through the atomic store. Appends are serialized; reads are
// unsynchronized snapshot reads, consistent with the ledger repository.
type SnapshotHistoryRepository struct {
	path   string
	writer *atomicfile.Writer
	mu     sync.Mutex
}

// NewSnapshotHistoryRepository creates a history store rooted at dataDir.
func NewSnapshotHistoryRepository(dataDir string, writer *atomicfile.Writer) *SnapshotHistoryRepository {
	return &SnapshotHistoryRepository{
		path:   filepath.Join(dataDir, snapshotHistoryFile),
		writer: writer,
	}
}

// LoadAll returns the full history, oldest first. A missing file yields an
// empty history.
func (r *SnapshotHistoryRepository) LoadAll() ([]model.Snapshot, error) {
	var state historyState
	if err := atomicfile.ReadJSON(r.path, &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return state.History, nil
}

// Latest returns the most recent snapshot, or apperrors.ErrNoSnapshot when
// none has been captured yet.
func (r *SnapshotHistoryRepository) Latest() (model.Snapshot, error) {
	history, err := r.LoadAll()
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(history) == 0 {
		return model.Snapshot{}, apperrors.ErrNoSnapshot
	}
	return history[len(history)-1], nil
}

// Last returns the most recent n snapshots, oldest first.
func (r *SnapshotHistoryRepository) Last(n int) ([]model.Snapshot, error) {
	history, err := r.LoadAll()
	if err != nil {
		return nil, err
	}
	if n < len(history) {
		history = history[len(history)-n:]
	}
	return history, nil
}

// Append adds snapshots to the ring and persists it, evicting the oldest
// entries beyond MaxSnapshotHistory.
func (r *SnapshotHistoryRepository) Append(snapshots ...model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history, err := r.LoadAll()
	if err != nil {
		return err
	}
	history = append(history, snapshots...)
	if len(history) > MaxSnapshotHistory {
		history = history[len(history)-MaxSnapshotHistory:]
	}
	return r.writer.WriteJSON(r.path, historyState{History: history})
}
