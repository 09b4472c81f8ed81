package service

import (
	"database/sql"
	"os"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/database"
)

// AppVersion is the application version reported by the system endpoints.
const AppVersion = "1.2.0"

// SystemService reports operational health: candle cache connectivity and
// data directory writability.
type SystemService struct {
	db      *sql.DB
	dataDir string
	backend string
}

// NewSystemService creates a new SystemService with the provided dependencies.
func NewSystemService(db *sql.DB, dataDir, backend string) *SystemService {
	return &SystemService{db: db, dataDir: dataDir, backend: backend}
}

// CheckHealth verifies the candle cache connection and that the ledger data
// directory exists.
func (s *SystemService) CheckHealth() error {
	if err := database.HealthCheck(s.db); err != nil {
		return err
	}
	if _, err := os.Stat(s.dataDir); err != nil {
		return err
	}
	return nil
}

// VersionInfo describes the running build and its storage configuration.
type VersionInfo struct {
	AppVersion    string `json:"app_version"`
	LedgerBackend string `json:"ledger_backend"`
	DataDir       string `json:"data_dir"`
}

// Version returns the build and storage details.
func (s *SystemService) Version() VersionInfo {
	return VersionInfo{
		AppVersion:    AppVersion,
		LedgerBackend: s.backend,
		DataDir:       s.dataDir,
	}
}
