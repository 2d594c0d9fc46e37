package proofs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/witness"
)

// EnshrineRequest describes a new promise.
type EnshrineRequest struct {
	Content     string
	Anonymous   bool
	DisplayName string
	Creator     string // defaults to Config.DefaultSender
	Deadline    *time.Time
	Category    string
}

// Enshrine anchors a new promise and records it locally. The witness runs
// alongside the submission and can only enrich the record, never fail it.
func (s *Service) Enshrine(ctx context.Context, req EnshrineRequest) (*promise.Record, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	creator, err := s.actor(req.Creator)
	if err != nil {
		return nil, err
	}
	if s.submitter == nil {
		return nil, ErrSubmitterUnavailable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	d := digest.Of(req.Content)
	if _, ok := find(s.snapshot(), d); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, digest.Short(d))
	}

	meta, err := payload.EncodeMetadata(payload.Metadata{
		Content:     req.Content,
		IsAnonymous: req.Anonymous,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		return nil, err
	}
	callData := payload.CallData(digest.Bytes(req.Content), meta)

	var (
		txID string
		att  witness.Attestation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		att = s.witness.Attest(gctx, req.Content)
		return nil
	})
	g.Go(func() error {
		var err error
		txID, err = s.submitter.Submit(gctx, creator, callData)
		if err != nil {
			return fmt.Errorf("submit anchor: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := promise.Record{
		ID:                 uuid.NewString(),
		Digest:             d,
		Content:            req.Content,
		Revealed:           true,
		Anonymous:          req.Anonymous,
		CreatorDisplayName: promise.DisplayName(req.Anonymous, req.DisplayName, creator),
		CreatorAddress:     creator,
		CreatedAt:          s.now(),
		Deadline:           req.Deadline,
		Category:           promise.ParseCategory(req.Category),
		Status:             promise.StatusActive,
		SourceTxID:         txID,
		WitnessStatement:   att.Statement,
		Milestones:         att.Milestones,
		SealReference:      att.SealReference,
	}

	local := append(s.localCopy(), rec.Clone())
	s.replaceLocal(ctx, local)

	s.logger.Info("proof enshrined",
		zap.String("id", rec.ID),
		zap.String("digest", rec.Digest),
		zap.String("tx", txID),
	)
	return &rec, nil
}

// UpdateStatus moves an active promise to fulfilled or voided. Only the
// creator may do so. The change is anchored as a status payload and then
// applied to the local copy; a chain-only record is adopted into the local
// cache on its first local change.
func (s *Service) UpdateStatus(ctx context.Context, ref string, status promise.Status, actor string) (*promise.Record, error) {
	state, ok := payload.StateFor(status)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, status)
	}
	who, err := s.actor(actor)
	if err != nil {
		return nil, err
	}
	if s.submitter == nil {
		return nil, ErrSubmitterUnavailable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, ok := find(s.snapshot(), ref)
	if !ok {
		return nil, ErrNotFound
	}
	if !rec.OwnedBy(who) {
		return nil, ErrForbidden
	}
	if rec.Status != promise.StatusActive {
		return nil, fmt.Errorf("%w: proof is already %s", ErrInvalidTransition, rec.Status)
	}

	p := payload.EncodeStatus(payload.StatusUpdate{State: state, Digest: rec.Digest, ClaimedAt: s.now()})
	txID, err := s.submitter.Submit(ctx, who, payload.CallData(payload.NonceDigest(p), p))
	if err != nil {
		return nil, fmt.Errorf("submit status update: %w", err)
	}

	updated := rec.Clone()
	updated.Status = status
	s.replaceLocal(ctx, upsert(s.localCopy(), updated))

	s.logger.Info("proof status updated",
		zap.String("digest", rec.Digest),
		zap.String("status", string(status)),
		zap.String("tx", txID),
	)
	return &updated, nil
}

// ToggleReveal flips whether the record's content is shown. It is a local
// display preference and is never anchored.
func (s *Service) ToggleReveal(ctx context.Context, ref string) (*promise.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, ok := find(s.snapshot(), ref)
	if !ok {
		return nil, ErrNotFound
	}
	updated := rec.Clone()
	updated.Revealed = !updated.Revealed
	s.replaceLocal(ctx, upsert(s.localCopy(), updated))
	return &updated, nil
}

// actor resolves and validates the address acting on a write.
func (s *Service) actor(addr string) (string, error) {
	if addr == "" {
		addr = s.cfg.DefaultSender
	}
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: invalid creator address %q", ErrInvalidInput, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

func (s *Service) localCopy() []promise.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return promise.CloneAll(s.local)
}

// upsert replaces the record with rec's digest or appends rec.
func upsert(records []promise.Record, rec promise.Record) []promise.Record {
	for i := range records {
		if records[i].Digest == rec.Digest {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}
