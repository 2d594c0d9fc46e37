package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// FileStore keeps one JSON document per namespace under a directory.
// Writes go to a temp file that is renamed over the target.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file cache: path is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(ns Namespace) string {
	return filepath.Join(s.dir, string(ns)+".json")
}

// Load implements Store. A missing file is an empty snapshot.
func (s *FileStore) Load(_ context.Context, ns Namespace) ([]promise.Record, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(ns))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s cache: %w", ns, err)
	}
	var records []promise.Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode %s cache: %w", ns, err)
	}
	return records, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, ns Namespace, records []promise.Record) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	if records == nil {
		records = []promise.Record{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", ns, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, string(ns)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s cache: %w", ns, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s cache: %w", ns, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s cache: %w", ns, err)
	}
	if err := os.Rename(tmp.Name(), s.path(ns)); err != nil {
		return fmt.Errorf("replace %s cache: %w", ns, err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
