package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite candle cache for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates the candle cache tables for testing.
// Schema is synchronized with the embedded goose migrations.
func createTestSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE candle (
			symbol VARCHAR(20) NOT NULL,
			period VARCHAR(10) NOT NULL,
			ts DATETIME NOT NULL,
			open FLOAT NOT NULL,
			high FLOAT NOT NULL,
			low FLOAT NOT NULL,
			close FLOAT NOT NULL,
			volume FLOAT NOT NULL,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_candle UNIQUE (symbol, period, ts)
		);

		CREATE INDEX ix_candle_symbol_period_ts ON candle(symbol, period, ts);
	`
	_, err := db.Exec(schema)
	return err
}
