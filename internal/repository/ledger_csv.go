package repository

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

const (
	csvLedgerFile = "cost_basis_lots.csv"
	csvMetaFile   = "cost_basis_meta.json"
)

// csvHeader is the fixed column order of the tabular encoding. An empty
// unit_cost_usd cell represents null.
var csvHeader = []string{"id", "date", "asset", "action", "qty", "unit_cost_usd", "note"}

// CSVLedgerStore persists the ledger as a flat table plus a JSON meta
// sidecar carrying the id counter. Rows are written sorted ascending by
// (date, id) so the file is deterministic for a given ledger.
type CSVLedgerStore struct {
	lotsPath string
	metaPath string
	writer   *atomicfile.Writer
}

// NewCSVLedgerStore creates a CSV ledger store rooted at dataDir.
func NewCSVLedgerStore(dataDir string, writer *atomicfile.Writer) *CSVLedgerStore {
	return &CSVLedgerStore{
		lotsPath: filepath.Join(dataDir, csvLedgerFile),
		metaPath: filepath.Join(dataDir, csvMetaFile),
		writer:   writer,
	}
}

// Backend names the encoding.
func (s *CSVLedgerStore) Backend() string { return "csv" }

// LoadAll reads the meta sidecar and the lot table. Missing files yield an
// empty ledger.
func (s *CSVLedgerStore) LoadAll() (*model.Ledger, error) {
	ledger := model.NewLedger()
	if err := atomicfile.ReadJSON(s.metaPath, &ledger.Meta); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ledger.Meta.Strategy = "LOFO"

	data, err := os.ReadFile(s.lotsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger, nil
		}
		return nil, err
	}

	lots, err := ParseLedgerCSV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", csvLedgerFile, err)
	}
	for _, lot := range lots {
		ledger.ByAsset[lot.Asset] = append(ledger.ByAsset[lot.Asset], lot)
	}
	return ledger, nil
}

// SaveAll atomically replaces the lot table and then the meta sidecar.
func (s *CSVLedgerStore) SaveAll(ledger *model.Ledger) error {
	data, err := EncodeLedgerCSV(ledger)
	if err != nil {
		return err
	}
	if err := s.writer.WriteBytes(s.lotsPath, data); err != nil {
		return err
	}
	return s.writer.WriteJSON(s.metaPath, ledger.Meta)
}

// EncodeLedgerCSV renders the ledger as the tabular encoding, rows sorted
// ascending by (date, id). Shared by the CSV store and the export endpoint.
func EncodeLedgerCSV(ledger *model.Ledger) ([]byte, error) {
	rows := make([]model.Lot, 0)
	for _, lots := range ledger.ByAsset {
		rows = append(rows, lots...)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].TS.Equal(rows[j].TS) {
			return rows[i].TS.Before(rows[j].TS)
		}
		return rows[i].ID < rows[j].ID
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to encode csv header: %w", err)
	}
	for _, lot := range rows {
		if err := w.Write(rowFromLot(lot)); err != nil {
			return nil, fmt.Errorf("failed to encode lot %s: %w", lot.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseLedgerCSV parses the tabular encoding into lots. Shared by the CSV
// store and the import endpoint's file upload path.
func ParseLedgerCSV(data []byte) ([]model.Lot, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	lots := make([]model.Lot, 0, len(records)-1)
	for i, row := range records[1:] {
		lot, err := lotFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func rowFromLot(lot model.Lot) []string {
	cost := ""
	if lot.UnitCostUSD != nil {
		cost = strconv.FormatFloat(*lot.UnitCostUSD, 'g', -1, 64)
	}
	return []string{
		lot.ID,
		lot.TS.UTC().Format(time.RFC3339Nano),
		lot.Asset,
		string(lot.Action),
		strconv.FormatFloat(lot.Qty, 'g', -1, 64),
		cost,
		lot.Note,
	}
}

func lotFromRow(row []string) (model.Lot, error) {
	if len(row) != len(csvHeader) {
		return model.Lot{}, fmt.Errorf("expected %d columns, got %d", len(csvHeader), len(row))
	}

	ts, err := time.Parse(time.RFC3339Nano, row[1])
	if err != nil {
		return model.Lot{}, fmt.Errorf("invalid date %q: %w", row[1], err)
	}
	qty, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return model.Lot{}, fmt.Errorf("invalid qty %q: %w", row[4], err)
	}

	var cost *float64
	if row[5] != "" {
		c, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return model.Lot{}, fmt.Errorf("invalid unit_cost_usd %q: %w", row[5], err)
		}
		cost = &c
	}

	return model.Lot{
		ID:          row[0],
		TS:          ts.UTC(),
		Asset:       row[2],
		Action:      model.Action(row[3]),
		Qty:         qty,
		UnitCostUSD: cost,
		Note:        row[6],
	}, nil
}
