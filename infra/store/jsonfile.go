package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/robofleet/core/fleet"
)

// JSONFileStore keeps the latest snapshot in a JSON document.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore returns a store writing to path. The directory is created
// when missing.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonfile: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONFileStore{path: path}, nil
}

// Save replaces the stored document. The file is written next to the target
// and renamed so a crash never leaves a truncated snapshot.
func (s *JSONFileStore) Save(ctx context.Context, snap fleet.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the stored document.
func (s *JSONFileStore) Load(ctx context.Context) (fleet.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return fleet.Snapshot{}, err
	}
	s.mu.Lock()
	b, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return fleet.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return fleet.Snapshot{}, err
	}
	var snap fleet.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fleet.Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return snap, nil
}

// Close implements Store.
func (s *JSONFileStore) Close() error { return nil }
