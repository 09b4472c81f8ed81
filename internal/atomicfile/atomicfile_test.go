package atomicfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TestWriter_WriteJSON tests the atomic JSON write path.
//
// WHY: Every persisted artifact (ledger, meta sidecar, snapshot history)
// goes through this writer. A write must be readable back identically, must
// create missing directories, and must leave no temp files behind.
func TestWriter_WriteJSON(t *testing.T) {
	t.Run("round-trips a document", func(t *testing.T) {
		// Setup
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")
		w := atomicfile.NewWriter()

		// Execute
		if err := w.WriteJSON(path, record{Name: "btc", Count: 3}); err != nil {
			t.Fatalf("WriteJSON() returned unexpected error: %v", err)
		}

		// Assert
		var got record
		if err := atomicfile.ReadJSON(path, &got); err != nil {
			t.Fatalf("ReadJSON() returned unexpected error: %v", err)
		}
		if got.Name != "btc" || got.Count != 3 {
			t.Errorf("Round trip mismatch: %+v", got)
		}
	})

	t.Run("creates intermediate directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")

		if err := atomicfile.NewWriter().WriteJSON(path, record{}); err != nil {
			t.Fatalf("WriteJSON() returned unexpected error: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected file to exist: %v", err)
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")
		w := atomicfile.NewWriter()

		for i := 0; i < 5; i++ {
			if err := w.WriteJSON(path, record{Count: i}); err != nil {
				t.Fatalf("WriteJSON() returned unexpected error: %v", err)
			}
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".tmp-") {
				t.Errorf("Temp file left behind: %s", e.Name())
			}
		}
	})
}

// TestWriter_Backup tests the rolling .bak behavior.
//
// WHY: The backup is the operator's escape hatch after a bad bulk edit; it
// must hold the previous committed version, not the current one, and must
// not appear before there is anything to back up.
func TestWriter_Backup(t *testing.T) {
	t.Run("keeps the previous version in .bak", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")
		w := atomicfile.NewWriter()

		if err := w.WriteJSON(path, record{Count: 1}); err != nil {
			t.Fatalf("first write failed: %v", err)
		}
		if err := w.WriteJSON(path, record{Count: 2}); err != nil {
			t.Fatalf("second write failed: %v", err)
		}

		var current, backup record
		if err := atomicfile.ReadJSON(path, &current); err != nil {
			t.Fatalf("failed to read current: %v", err)
		}
		if err := atomicfile.ReadJSON(path+".bak", &backup); err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if current.Count != 2 || backup.Count != 1 {
			t.Errorf("Expected current=2 backup=1, got current=%d backup=%d", current.Count, backup.Count)
		}
	})

	t.Run("no backup before the first replace", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")

		if err := atomicfile.NewWriter().WriteJSON(path, record{}); err != nil {
			t.Fatalf("WriteJSON() returned unexpected error: %v", err)
		}
		if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected no backup file, stat err = %v", err)
		}
	})

	t.Run("NewWriterNoBackup never writes .bak", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		w := atomicfile.NewWriterNoBackup()

		for i := 0; i < 2; i++ {
			if err := w.WriteJSON(path, record{Count: i}); err != nil {
				t.Fatalf("WriteJSON() returned unexpected error: %v", err)
			}
		}

		if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected no backup file, stat err = %v", err)
		}
	})
}

// TestReadJSON_Missing tests the missing-file contract.
//
// WHY: First boot has no ledger and no history; loaders detect that through
// os.ErrNotExist and fall back to empty state, so the error must pass
// through unwrapped.
func TestReadJSON_Missing(t *testing.T) {
	var v record
	err := atomicfile.ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Expected os.ErrNotExist, got %v", err)
	}
}

// TestWriter_Concurrent tests serialized concurrent writes.
//
// WHY: The scheduler and an API mutation can write at the same time. The
// mutex must serialize them so the final file is one intact version.
func TestWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	w := atomicfile.NewWriter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := w.WriteJSON(path, record{Count: n}); err != nil {
				t.Errorf("concurrent WriteJSON failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	var got record
	if err := atomicfile.ReadJSON(path, &got); err != nil {
		t.Fatalf("final read failed: %v", err)
	}
	if got.Count < 0 || got.Count >= 20 {
		t.Errorf("Final state is not one of the written versions: %+v", got)
	}
}
