// Package poller drives periodic chain syncs.
package poller

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/BaseProofs/internal/proofs"
)

// Config holds poller configuration.
type Config struct {
	Interval time.Duration
	// Deadline bounds a single sync cycle. Defaults to Interval minus one
	// second so cycles never overlap.
	Deadline time.Duration
	// SyncOnStart runs one cycle before the first tick.
	SyncOnStart bool
}

// Syncer runs one sync cycle. *proofs.Service satisfies this interface.
type Syncer interface {
	Sync(ctx context.Context) (proofs.SyncResult, error)
}

// Poller calls Sync on a fixed interval.
type Poller struct {
	syncer Syncer
	cfg    Config
	logger *zap.Logger
}

// New creates a Poller.
func New(syncer Syncer, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = cfg.Interval - time.Second
		if cfg.Deadline <= 0 {
			cfg.Deadline = cfg.Interval
		}
	}
	return &Poller{syncer: syncer, cfg: cfg, logger: logger}
}

// Start runs the sync loop until quit is signalled.
func (p *Poller) Start(quit <-chan os.Signal) {
	if p.cfg.SyncOnStart {
		p.SyncOnce()
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.SyncOnce()
		case <-quit:
			return
		}
	}
}

// SyncOnce runs a single cycle under the configured deadline. Failures are
// logged; an unreachable chain or an expired deadline just means no new
// chain data this cycle.
func (p *Poller) SyncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Deadline)
	defer cancel()

	_, err := p.syncer.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, proofs.ErrNoFreshData):
		p.logger.Info("poller: no new chain data this cycle", zap.Error(err))
	default:
		p.logger.Error("poller: sync", zap.Error(err))
	}
}
