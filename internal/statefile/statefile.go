// Package statefile reads and writes the JSON state files kept next to the cache.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

// Save encodes v as indented JSON and replaces path atomically.
func Save(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &crawlerr.PersistenceError{Op: "encode", Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &crawlerr.PersistenceError{Op: "save", Path: path, Err: fmt.Errorf("create dir: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &crawlerr.PersistenceError{Op: "save", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return &crawlerr.PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &crawlerr.PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &crawlerr.PersistenceError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// Load decodes the JSON file at path into v. A file that exists but cannot be decoded
// yields an error wrapping crawlerr.ErrCorrupted.
func Load(path string, v any) error {
	payload, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return &crawlerr.PersistenceError{Op: "load", Path: path, Err: err}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return crawlerr.Corrupted(path, err)
	}
	return nil
}
