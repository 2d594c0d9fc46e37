package cache

import (
	"context"
	"sync"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// MemoryStore keeps snapshots in process memory. Records are deep-copied on
// the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[Namespace][]promise.Record
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Namespace][]promise.Record)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, ns Namespace) ([]promise.Record, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return promise.CloneAll(s.data[ns]), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, ns Namespace, records []promise.Record) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[ns] = promise.CloneAll(records)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
