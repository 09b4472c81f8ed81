// Package atomicfile persists structured records to disk with crash-safe
// replace semantics: content is written to a uniquely named temporary file in
// the target directory, flushed to durable storage, and swapped in with an
// atomic rename. A reader therefore never observes a partially written file;
// it sees either the previous committed version or the new one.
//
// When backups are enabled, the previous version of the file survives as a
// single rolling ".bak" sibling. Backup failures never block the primary
// write.
//
// Writers within one process are serialized by the Writer's mutex. No
// cross-process locking is provided.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Writer serializes atomic writes and holds the backup policy.
// The zero value writes without backups; use NewWriter for the default
// backup-enabled behavior.
type Writer struct {
	mu     sync.Mutex
	backup bool
}

// NewWriter returns a Writer that keeps a single rolling .bak of every file
// it replaces.
func NewWriter() *Writer {
	return &Writer{backup: true}
}

// NewWriterNoBackup returns a Writer with backups disabled.
func NewWriterNoBackup() *Writer {
	return &Writer{}
}

// WriteJSON marshals v with two-space indentation and atomically replaces
// path with the result.
func (w *Writer) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return w.WriteBytes(path, data)
}

// WriteBytes atomically replaces path with data.
func (w *Writer) WriteBytes(path string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// On any failure below the temp file is left behind only if removal
	// itself fails; the target file is never touched.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if w.backup {
		// Best effort: a failed backup must not block the primary write.
		copyBackup(path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// copyBackup copies the current committed file to path+".bak", replacing any
// previous backup. Missing source or copy errors are ignored.
func copyBackup(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	bak, err := os.Create(path + ".bak")
	if err != nil {
		return
	}
	defer bak.Close()

	_, _ = io.Copy(bak, src)
}

// ReadJSON reads path into v. A missing file returns os.ErrNotExist
// untouched so callers can fall back to an empty state.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
