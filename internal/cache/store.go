// Package cache persists promise record snapshots. Every backend is a plain
// load/store pair: a namespace is read wholesale and rewritten wholesale.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// Namespace separates the user's own records from the last chain snapshot.
type Namespace string

const (
	// Local holds records created or mutated on this node. Authoritative.
	Local Namespace = "local"
	// Chain holds the last successfully reconciled chain snapshot.
	Chain Namespace = "chain"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache closed")

// Store loads and saves record snapshots per namespace.
type Store interface {
	Load(ctx context.Context, ns Namespace) ([]promise.Record, error)
	Save(ctx context.Context, ns Namespace, records []promise.Record) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string // memory | file | pebble | postgres
	Path        string // directory for file and pebble
	DatabaseURL string // postgres
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Path)
	case "pebble":
		return OpenPebble(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

func validNamespace(ns Namespace) error {
	if ns != Local && ns != Chain {
		return fmt.Errorf("unknown cache namespace %q", ns)
	}
	return nil
}
