package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/lotengine"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
)

// LedgerService owns the business logic of the cost-basis book. Every
// mutation follows the same transactional shape: the repository re-loads the
// ledger under its write lock, the change is applied to the in-memory copy,
// and the whole resulting ledger (not just the delta) is normalized,
// validated and LOFO-reconciled before anything is written. On any failure
// the attempted change is discarded entirely.
type LedgerService struct {
	ledgerRepo *repository.LedgerRepository
}

// NewLedgerService creates a new LedgerService with the provided repository dependency.
func NewLedgerService(ledgerRepo *repository.LedgerRepository) *LedgerService {
	return &LedgerService{ledgerRepo: ledgerRepo}
}

// LedgerMetaView is the ledger header exposed through the API.
type LedgerMetaView struct {
	Strategy  string    `json:"strategy"`
	LastID    int       `json:"last_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Backend   string    `json:"backend"`
}

// AssetBook is one asset's reconciled book: the summary plus its lots in
// chronological order.
type AssetBook struct {
	Asset   string                 `json:"asset"`
	Summary lotengine.AssetSummary `json:"summary"`
	Lots    []model.Lot            `json:"lots"`
}

// LedgerView is the full reconciled ledger, assets in sorted symbol order.
type LedgerView struct {
	Meta   LedgerMetaView `json:"meta"`
	Assets []AssetBook    `json:"assets"`
}

// ImportResult reports the outcome of a lot import batch.
type ImportResult struct {
	BatchID   string `json:"batch_id"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	NewLastID int    `json:"new_last_id"`
}

// GetLedger returns the reconciled ledger view. prices optionally supplies
// market prices per asset for unrealized P/L; it may be nil.
func (s *LedgerService) GetLedger(prices map[string]float64) (*LedgerView, error) {
	ledger, err := s.ledgerRepo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToLoadLedger, err)
	}

	normalized := lotengine.NormalizeAndSort(ledger.ByAsset)
	result, recErrs := lotengine.Reconcile(normalized, prices)
	if len(recErrs) > 0 {
		// A committed ledger always reconciles; reaching this means the file
		// was edited out-of-band.
		return nil, &lotengine.BatchReconciliationError{Failures: recErrs}
	}

	view := &LedgerView{
		Meta: LedgerMetaView{
			Strategy:  "LOFO",
			LastID:    ledger.Meta.LastID,
			UpdatedAt: ledger.Meta.UpdatedAt,
			Backend:   s.ledgerRepo.Backend(),
		},
	}
	assets := make([]string, 0, len(normalized))
	for asset := range normalized {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		view.Assets = append(view.Assets, AssetBook{
			Asset:   asset,
			Summary: result.Summaries[asset],
			Lots:    normalized[asset],
		})
	}
	return view, nil
}

// CreateLot validates and commits a single new lot, assigning the next
// monotonic id. Returns the committed lot and its asset's post-commit
// summary.
func (s *LedgerService) CreateLot(lot model.Lot) (model.Lot, lotengine.AssetSummary, error) {
	var summary lotengine.AssetSummary

	_, err := s.ledgerRepo.Update(func(ledger *model.Ledger) error {
		ledger.Meta.LastID++
		lot.ID = model.FormatLotID(ledger.Meta.LastID)
		ledger.ByAsset[lot.Asset] = append(ledger.ByAsset[lot.Asset], lot)

		result, err := s.revalidate(ledger)
		if err != nil {
			return err
		}
		summary = result.Summaries[lot.Asset]
		return nil
	})
	if err != nil {
		return model.Lot{}, lotengine.AssetSummary{}, err
	}
	return lot, summary, nil
}

// LotPatch carries the editable fields of a lot. Nil fields are left
// unchanged; CostSet distinguishes "clear the cost" from "leave it alone".
type LotPatch struct {
	TS      *time.Time
	Qty     *float64
	Cost    *float64
	CostSet bool
	Note    *string
}

// UpdateLot edits an uncommitted-supply or consuming lot. Buy/deposit lots
// whose supply has been drawn upon by a later sell/withdraw are immutable
// and rejected with apperrors.ErrConsumedLot. The edited ledger is fully
// re-reconciled before commit.
func (s *LedgerService) UpdateLot(id string, patch LotPatch) (model.Lot, error) {
	var updated model.Lot

	_, err := s.ledgerRepo.Update(func(ledger *model.Ledger) error {
		asset, idx, ok := findLot(ledger, id)
		if !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrLotNotFound, id)
		}
		if err := s.rejectConsumed(ledger, ledger.ByAsset[asset][idx]); err != nil {
			return err
		}

		lot := &ledger.ByAsset[asset][idx]
		if patch.TS != nil {
			lot.TS = *patch.TS
		}
		if patch.Qty != nil {
			lot.Qty = *patch.Qty
		}
		if patch.CostSet {
			lot.UnitCostUSD = patch.Cost
		}
		if patch.Note != nil {
			lot.Note = *patch.Note
		}
		updated = *lot

		_, err := s.revalidate(ledger)
		return err
	})
	if err != nil {
		return model.Lot{}, err
	}
	return updated, nil
}

// DeleteLot removes a lot. Consumed supply lots are immutable and rejected;
// removing a supply lot that a later sell depends on fails reconciliation
// and is also rejected.
func (s *LedgerService) DeleteLot(id string) error {
	_, err := s.ledgerRepo.Update(func(ledger *model.Ledger) error {
		asset, idx, ok := findLot(ledger, id)
		if !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrLotNotFound, id)
		}
		if err := s.rejectConsumed(ledger, ledger.ByAsset[asset][idx]); err != nil {
			return err
		}

		lots := ledger.ByAsset[asset]
		ledger.ByAsset[asset] = append(lots[:idx], lots[idx+1:]...)
		if len(ledger.ByAsset[asset]) == 0 {
			delete(ledger.ByAsset, asset)
		}

		_, err := s.revalidate(ledger)
		return err
	})
	return err
}

// ImportLots merges a batch of caller-supplied lots into the ledger.
// Records without an id receive the next monotonic ones. A record whose id
// already exists is skipped when skipOnConflict is set, otherwise the whole
// import aborts with apperrors.ErrIDConflict. The merged ledger is validated
// and reconciled as a whole; nothing is committed on failure.
func (s *LedgerService) ImportLots(lots []model.Lot, skipOnConflict bool) (ImportResult, error) {
	result := ImportResult{BatchID: uuid.New().String()}

	ledger, err := s.ledgerRepo.Update(func(ledger *model.Ledger) error {
		existing := make(map[string]bool)
		for _, assetLots := range ledger.ByAsset {
			for _, l := range assetLots {
				existing[l.ID] = true
			}
		}

		for _, lot := range lots {
			if lot.ID != "" && existing[lot.ID] {
				if skipOnConflict {
					result.Skipped++
					continue
				}
				return fmt.Errorf("%w: %s", apperrors.ErrIDConflict, lot.ID)
			}
			if lot.ID == "" {
				ledger.Meta.LastID++
				lot.ID = model.FormatLotID(ledger.Meta.LastID)
			}
			ledger.ByAsset[lot.Asset] = append(ledger.ByAsset[lot.Asset], lot)
			existing[lot.ID] = true
			result.Imported++
		}

		_, err := s.revalidate(ledger)
		return err
	})
	if err != nil {
		return ImportResult{}, err
	}
	result.NewLastID = ledger.Meta.LastID
	return result, nil
}

// Summaries reconciles the committed ledger and returns the per-asset
// summaries, optionally priced.
func (s *LedgerService) Summaries(prices map[string]float64) (map[string]lotengine.AssetSummary, error) {
	ledger, err := s.ledgerRepo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToLoadLedger, err)
	}
	result, recErrs := lotengine.Reconcile(lotengine.NormalizeAndSort(ledger.ByAsset), prices)
	if len(recErrs) > 0 {
		return nil, &lotengine.BatchReconciliationError{Failures: recErrs}
	}
	return result.Summaries, nil
}

// Export returns the committed ledger for download in the requested physical
// encoding.
func (s *LedgerService) Export(format string) ([]byte, string, error) {
	ledger, err := s.ledgerRepo.LoadAll()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", apperrors.ErrFailedToLoadLedger, err)
	}
	switch format {
	case "json":
		data, err := repository.EncodeLedgerJSON(ledger)
		return data, "application/json", err
	case "csv":
		data, err := repository.EncodeLedgerCSV(ledger)
		return data, "text/csv", err
	default:
		return nil, "", fmt.Errorf("%w: %s", apperrors.ErrUnknownBackend, format)
	}
}

// revalidate normalizes the mutated ledger in place, validates every lot,
// and reconciles every asset. Any violation or unmet demand rejects the
// transaction.
func (s *LedgerService) revalidate(ledger *model.Ledger) (*lotengine.Result, error) {
	normalized := lotengine.NormalizeAndSort(ledger.ByAsset)
	if err := lotengine.Validate(normalized); err != nil {
		return nil, err
	}
	result, recErrs := lotengine.Reconcile(normalized, nil)
	if len(recErrs) > 0 {
		return nil, &lotengine.BatchReconciliationError{Failures: recErrs}
	}
	ledger.ByAsset = normalized
	return result, nil
}

// rejectConsumed dry-runs reconciliation on the pre-change ledger and
// rejects the mutation when the target supply lot has been drawn from.
func (s *LedgerService) rejectConsumed(ledger *model.Ledger, lot model.Lot) error {
	if !lot.Action.IsSupply() {
		return nil
	}
	result, recErrs := lotengine.Reconcile(lotengine.NormalizeAndSort(ledger.ByAsset), nil)
	if len(recErrs) > 0 {
		return &lotengine.BatchReconciliationError{Failures: recErrs}
	}
	if remaining, ok := result.RemainingByID()[lot.ID]; ok && remaining < lot.Qty-1e-12 {
		return fmt.Errorf("%w: %s", apperrors.ErrConsumedLot, lot.ID)
	}
	return nil
}

func findLot(ledger *model.Ledger, id string) (asset string, idx int, ok bool) {
	assets := make([]string, 0, len(ledger.ByAsset))
	for a := range ledger.ByAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, a := range assets {
		for i, l := range ledger.ByAsset[a] {
			if l.ID == id {
				return a, i, true
			}
		}
	}
	return "", 0, false
}
