package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	pebble "github.com/cockroachdb/pebble"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// PebbleStore keeps records in a pebble KV store under keys
// "<namespace>:<seq>:<id>". The zero-padded sequence preserves save order.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, errors.New("pebble cache: path is required")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func prefix(ns Namespace) []byte {
	return []byte(string(ns) + ":")
}

// prefixEnd is the first key past every key carrying p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

func recordKey(ns Namespace, seq int, id string) []byte {
	return []byte(fmt.Sprintf("%s:%08d:%s", ns, seq, id))
}

// Load implements Store.
func (s *PebbleStore) Load(_ context.Context, ns Namespace) ([]promise.Record, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, ErrClosed
	}

	lower := prefix(ns)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var records []promise.Record
	for ok := iter.First(); ok; ok = iter.Next() {
		var r promise.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		records = append(records, r)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s cache: %w", ns, err)
	}
	return records, nil
}

// Save implements Store. The namespace is cleared and rewritten in one batch.
func (s *PebbleStore) Save(_ context.Context, ns Namespace, records []promise.Record) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	if s.db == nil {
		return ErrClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	lower := prefix(ns)
	if err := batch.DeleteRange(lower, prefixEnd(lower), nil); err != nil {
		return fmt.Errorf("clear %s cache: %w", ns, err)
	}
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		if err := batch.Set(recordKey(ns, i, r.ID), b, nil); err != nil {
			return fmt.Errorf("stage record %s: %w", r.ID, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit %s cache: %w", ns, err)
	}
	return nil
}

// Close implements Store.
func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
