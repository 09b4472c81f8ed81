package repository

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

const jsonLedgerFile = "cost_basis_lots.json"

// JSONLedgerStore persists the ledger as a single structured document:
// a meta header plus lots grouped by asset.
type JSONLedgerStore struct {
	path   string
	writer *atomicfile.Writer
}

// NewJSONLedgerStore creates a JSON ledger store rooted at dataDir.
func NewJSONLedgerStore(dataDir string, writer *atomicfile.Writer) *JSONLedgerStore {
	return &JSONLedgerStore{
		path:   filepath.Join(dataDir, jsonLedgerFile),
		writer: writer,
	}
}

// Backend names the encoding.
func (s *JSONLedgerStore) Backend() string { return "json" }

// LoadAll reads the ledger document. A missing file yields an empty ledger.
func (s *JSONLedgerStore) LoadAll() (*model.Ledger, error) {
	ledger := model.NewLedger()
	if err := atomicfile.ReadJSON(s.path, ledger); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewLedger(), nil
		}
		return nil, err
	}
	if ledger.ByAsset == nil {
		ledger.ByAsset = make(map[string][]model.Lot)
	}
	// The asset field is redundant with the map key in this encoding;
	// restore it so both encodings load identically.
	for asset, lots := range ledger.ByAsset {
		for i := range lots {
			if lots[i].Asset == "" {
				lots[i].Asset = asset
			}
		}
	}
	return ledger, nil
}

// SaveAll atomically replaces the ledger document.
func (s *JSONLedgerStore) SaveAll(ledger *model.Ledger) error {
	return s.writer.WriteJSON(s.path, ledger)
}

// EncodeLedgerJSON renders the ledger as the JSON document encoding,
// byte-identical to what the JSON store persists.
func EncodeLedgerJSON(ledger *model.Ledger) ([]byte, error) {
	return json.MarshalIndent(ledger, "", "  ")
}
