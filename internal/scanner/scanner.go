// Package scanner retrieves anchor events for the proofs contract together
// with the full call data of each anchoring transaction.
//
// The event only carries the digest argument; the side-channel payload lives
// in the transaction input, so every matched event costs one extra fetch.
// Those fetches run concurrently with a bounded fan-out. A failed fetch never
// aborts the scan: the event is kept with empty call data.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrSourceUnavailable is returned when the log source itself cannot be queried.
var ErrSourceUnavailable = errors.New("log source unavailable")

// RawEvent is one anchor event plus the raw input of its transaction.
type RawEvent struct {
	CreatorAddress string
	Digest         string
	BlockTimestamp time.Time
	BlockNumber    uint64
	LogIndex       uint
	TransactionID  string
	RawCallData    []byte
}

// AnchorLog is an anchor event as returned by a Source.
type AnchorLog struct {
	Creator     common.Address
	Digest      common.Hash
	BlockNumber uint64
	BlockTime   time.Time
	TxHash      common.Hash
	LogIndex    uint
}

// Query selects anchor events. A nil ToBlock means the latest block.
type Query struct {
	Contract  common.Address
	FromBlock *big.Int
	ToBlock   *big.Int
}

// Source is the external log collaborator.
type Source interface {
	// FilterAnchors returns the anchor events matching q in arrival order.
	FilterAnchors(ctx context.Context, q Query) ([]AnchorLog, error)

	// CallData returns the full input of the given transaction.
	CallData(ctx context.Context, txHash common.Hash) ([]byte, error)
}

// FetchRecordFunc is an optional callback invoked once per call-data fetch.
type FetchRecordFunc func(success bool)

// Config holds scanner tuning.
type Config struct {
	// Concurrency bounds simultaneous call-data fetches. Default 8.
	Concurrency int
	// RequestsPerSecond throttles call-data fetches; 0 disables throttling.
	RequestsPerSecond float64
	// CallDataTTL controls how long fetched call data is reused across
	// scans; 0 disables the cache.
	CallDataTTL time.Duration
}

// Scanner runs anchor scans against a Source.
type Scanner struct {
	src     Source
	cfg     Config
	limiter *rate.Limiter
	cache   *callDataCache
	onFetch FetchRecordFunc
	logger  *zap.Logger
}

// New creates a Scanner.
func New(src Source, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	s := &Scanner{
		src:    src,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CallDataTTL > 0 {
		s.cache = newCallDataCache(cfg.CallDataTTL)
	}
	return s
}

// SetFetchRecord configures the per-fetch metrics callback.
func (s *Scanner) SetFetchRecord(fn FetchRecordFunc) {
	s.onFetch = fn
}

// Scan returns every anchor event emitted by contract between from and to
// (nil to means latest), each with its transaction call data attached.
//
// If the source cannot be queried, Scan returns no events and an error
// wrapping ErrSourceUnavailable. If ctx ends during the fetch phase, the
// events are still returned; those whose fetch had not completed carry
// empty call data.
func (s *Scanner) Scan(ctx context.Context, contract common.Address, from, to *big.Int) ([]RawEvent, error) {
	logs, err := s.src.FilterAnchors(ctx, Query{Contract: contract, FromBlock: from, ToBlock: to})
	if err != nil {
		return nil, fmt.Errorf("%w: filter anchors: %w", ErrSourceUnavailable, err)
	}

	events := make([]RawEvent, len(logs))
	for i, l := range logs {
		events[i] = RawEvent{
			CreatorAddress: l.Creator.Hex(),
			Digest:         l.Digest.Hex(),
			BlockTimestamp: l.BlockTime.UTC(),
			BlockNumber:    l.BlockNumber,
			LogIndex:       l.LogIndex,
			TransactionID:  l.TxHash.Hex(),
		}
	}

	if s.cache != nil {
		if n := s.cache.evict(); n > 0 {
			s.logger.Debug("scanner: evicted call data", zap.Int("entries", n))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			events[i].RawCallData = s.fetch(gctx, logs[i].TxHash)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("scanner: scan complete",
		zap.String("contract", contract.Hex()),
		zap.Int("events", len(events)),
	)
	return events, nil
}

// fetch loads call data for one transaction. Failures return nil.
func (s *Scanner) fetch(ctx context.Context, txHash common.Hash) []byte {
	key := txHash.Hex()
	if s.cache != nil {
		if data, ok := s.cache.get(key); ok {
			return data
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}

	data, err := s.src.CallData(ctx, txHash)
	if s.onFetch != nil {
		s.onFetch(err == nil)
	}
	if err != nil {
		s.logger.Warn("scanner: fetch call data",
			zap.String("tx", key),
			zap.Error(err),
		)
		return nil
	}

	if s.cache != nil {
		s.cache.set(key, data)
	}
	return data
}

// CachedCallData returns the number of cached call-data entries.
func (s *Scanner) CachedCallData() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.len()
}
