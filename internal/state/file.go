package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore implements Store as a single JSON document keyed by device name.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	if path == "" {
		panic("state file path must not be empty")
	}
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the record file. Entries without a last-active timestamp are
// dropped.
func (s *FileStore) Load() (map[string]Record, error) {
	records := make(map[string]Record)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return records, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return records, &PersistenceError{Op: "load", Path: s.path, Err: fmt.Errorf("decode: %w", err)}
	}

	for name, rec := range raw {
		if name == "" || rec.LastActiveAt.IsZero() {
			continue
		}
		if rec.Counters != nil {
			rec.Counters.Name = name
		}
		records[name] = rec
	}
	return records, nil
}

// Save replaces the record file with records.
func (s *FileStore) Save(records map[string]Record) error {
	if records == nil {
		records = map[string]Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}
