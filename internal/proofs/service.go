// Package proofs runs the ledger pipeline (scan, classify, reconcile, merge)
// and the local write path, and serves queries over the merged record set.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jmerrifield20/BaseProofs/internal/cache"
	"github.com/jmerrifield20/BaseProofs/internal/classifier"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/reconciler"
	"github.com/jmerrifield20/BaseProofs/internal/scanner"
	"github.com/jmerrifield20/BaseProofs/internal/submit"
	"github.com/jmerrifield20/BaseProofs/internal/witness"
)

var (
	// ErrNotFound is returned when no record matches a reference.
	ErrNotFound = errors.New("proof not found")
	// ErrDuplicate is returned when content with the same digest already exists.
	ErrDuplicate = errors.New("proof already enshrined")
	// ErrForbidden is returned when someone other than the creator changes a record.
	ErrForbidden = errors.New("only the creator may change this proof")
	// ErrInvalidTransition is returned for status changes out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSubmitterUnavailable is returned by write operations on a read-only service.
	ErrSubmitterUnavailable = errors.New("no transaction submitter configured")
	// ErrInvalidInput is returned for malformed write requests.
	ErrInvalidInput = errors.New("invalid proof request")
	// ErrNoFreshData is returned by Sync when the chain could not be read this
	// cycle. The previous snapshot stays in place.
	ErrNoFreshData = errors.New("no fresh chain data")
)

// EventScanner is the read side of the ledger. *scanner.Scanner satisfies it.
type EventScanner interface {
	Scan(ctx context.Context, contract common.Address, from, to *big.Int) ([]scanner.RawEvent, error)
}

// Config holds the service settings.
type Config struct {
	Contract  common.Address
	FromBlock uint64
	Policy    reconciler.Policy
	// DefaultSender is used for writes that do not name an actor.
	DefaultSender string
}

// SyncResult summarises one sync cycle.
type SyncResult struct {
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
	Events    int           `json:"events"`
	Creations int           `json:"creations"`
	Updates   int           `json:"updates"`
	Chain     int           `json:"chain_records"`
	Total     int           `json:"total_records"`
}

// SyncObserver is notified after every sync attempt.
type SyncObserver func(res SyncResult, err error)

// Service owns the local and chain snapshots and the merged view built from
// them. Snapshots are replaced, never edited in place.
type Service struct {
	scanner   EventScanner
	store     cache.Store
	witness   witness.Witness
	submitter submit.Submitter // nil = read-only
	cfg       Config
	logger    *zap.Logger
	onSync    SyncObserver
	now       func() time.Time

	syncMu  sync.Mutex // serialises Sync
	writeMu sync.Mutex // serialises local mutations

	mu       sync.RWMutex
	local    []promise.Record
	chain    []promise.Record
	view     []promise.Record
	lastSync *SyncResult
}

// NewService creates a Service. submitter may be nil for a read-only node;
// w may be nil, in which case the fixed fallback attestation is used.
func NewService(sc EventScanner, store cache.Store, w witness.Witness, submitter submit.Submitter, cfg Config, logger *zap.Logger) *Service {
	if w == nil {
		w = witness.Fallback{}
	}
	if cfg.Policy.Order == "" {
		cfg.Policy = reconciler.DefaultPolicy()
	}
	return &Service{
		scanner:   sc,
		store:     store,
		witness:   w,
		submitter: submitter,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetSyncObserver registers a callback invoked after each sync attempt.
func (s *Service) SetSyncObserver(fn SyncObserver) {
	s.onSync = fn
}

// Load reads both cache namespaces and builds the initial view.
func (s *Service) Load(ctx context.Context) error {
	local, err := s.store.Load(ctx, cache.Local)
	if err != nil {
		return fmt.Errorf("load local cache: %w", err)
	}
	chain, err := s.store.Load(ctx, cache.Chain)
	if err != nil {
		return fmt.Errorf("load chain cache: %w", err)
	}

	s.mu.Lock()
	s.local = local
	s.chain = chain
	s.view = reconciler.Merge(local, chain)
	n := len(s.view)
	s.mu.Unlock()

	s.logger.Info("proof cache loaded",
		zap.Int("local", len(local)),
		zap.Int("chain", len(chain)),
		zap.Int("total", n),
	)
	return nil
}

// Sync scans the contract, rebuilds the chain snapshot and swaps in a new
// merged view. A source failure or an expired deadline returns
// ErrNoFreshData and leaves the previous snapshot untouched.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	res, err := s.sync(ctx)
	if s.onSync != nil {
		s.onSync(res, err)
	}
	return res, err
}

func (s *Service) sync(ctx context.Context) (SyncResult, error) {
	start := s.now()
	from := new(big.Int).SetUint64(s.cfg.FromBlock)

	events, err := s.scanner.Scan(ctx, s.cfg.Contract, from, nil)
	if err != nil {
		s.logger.Warn("chain scan failed, keeping previous snapshot", zap.Error(err))
		return SyncResult{}, fmt.Errorf("%w: %w", ErrNoFreshData, err)
	}
	if err := ctx.Err(); err != nil {
		// Abandoned fetches left some events without payloads.
		s.logger.Info("no new chain data this cycle", zap.Error(err))
		return SyncResult{}, fmt.Errorf("%w: %w", ErrNoFreshData, err)
	}

	creations, updates := classifier.ClassifyAll(events)
	chain := reconciler.Reconcile(creations, updates, s.cfg.Policy)

	if err := s.store.Save(ctx, cache.Chain, chain); err != nil {
		s.logger.Error("persist chain snapshot", zap.Error(err))
	}

	s.mu.Lock()
	s.chain = chain
	s.view = reconciler.Merge(s.local, chain)
	total := len(s.view)
	res := SyncResult{
		At:        start,
		Duration:  s.now().Sub(start),
		Events:    len(events),
		Creations: len(creations),
		Updates:   len(updates),
		Chain:     len(chain),
		Total:     total,
	}
	s.lastSync = &res
	s.mu.Unlock()

	s.logger.Info("chain sync complete",
		zap.Int("events", res.Events),
		zap.Int("creations", res.Creations),
		zap.Int("updates", res.Updates),
		zap.Int("total", res.Total),
	)
	return res, nil
}

// LastSync returns the most recent successful sync, if any.
func (s *Service) LastSync() (SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSync == nil {
		return SyncResult{}, false
	}
	return *s.lastSync, true
}

// Records returns a copy of the merged view.
func (s *Service) Records() []promise.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return promise.CloneAll(s.view)
}

// snapshot returns the current view without copying. Callers must not modify it.
func (s *Service) snapshot() []promise.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// replaceLocal persists local and swaps it in. The in-memory swap happens even
// if persistence fails; the record is recoverable from the chain.
func (s *Service) replaceLocal(ctx context.Context, local []promise.Record) {
	if err := s.store.Save(ctx, cache.Local, local); err != nil {
		s.logger.Error("persist local cache", zap.Error(err))
	}
	s.mu.Lock()
	s.local = local
	s.view = reconciler.Merge(local, s.chain)
	s.mu.Unlock()
}
