// Package reconciler folds classified anchor events into one current-state
// record per promise and merges that chain-derived set with the local cache.
//
// Every function here is pure: inputs are never mutated and each call returns
// a freshly allocated slice.
package reconciler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmerrifield20/BaseProofs/internal/classifier"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// Order selects how multiple status updates for one record are sequenced.
type Order string

const (
	// OrderApply applies updates in classification order; the last applied
	// update wins regardless of its claimed time.
	OrderApply Order = "apply"
	// OrderTimestamp applies updates sorted by ClaimedAt, so the most
	// recently claimed update wins.
	OrderTimestamp Order = "timestamp"
)

// ParseOrder maps a configuration value onto an Order.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderApply:
		return OrderApply, nil
	case OrderTimestamp:
		return OrderTimestamp, nil
	}
	return "", fmt.Errorf("unknown reconcile order %q", s)
}

// Policy controls how status updates are applied.
type Policy struct {
	Order Order
	// AllowReversal lets a terminal record move to the other terminal state.
	// When false a record keeps the first terminal status applied to it.
	AllowReversal bool
}

// DefaultPolicy is apply order with reversal allowed.
func DefaultPolicy() Policy {
	return Policy{Order: OrderApply, AllowReversal: true}
}

// Reconcile builds one record per digest from creations and applies updates
// to them. An update applies only when its embedded target digest names a
// known record and its sender is that record's creator; anything else is
// ignored.
func Reconcile(creations []classifier.Creation, updates []classifier.StatusUpdate, policy Policy) []promise.Record {
	byDigest := make(map[string]int, len(creations))
	records := make([]promise.Record, 0, len(creations))

	for _, c := range creations {
		idx, ok := byDigest[c.Digest]
		if !ok {
			byDigest[c.Digest] = len(records)
			records = append(records, fromCreation(c))
			continue
		}
		// Earliest block time wins; equal times keep the first seen.
		if c.BlockTimestamp.Before(records[idx].CreatedAt) {
			records[idx] = fromCreation(c)
		}
	}

	for _, u := range ordered(updates, policy.Order) {
		idx, ok := byDigest[u.TargetDigest]
		if !ok {
			continue
		}
		rec := &records[idx]
		if !rec.OwnedBy(u.CreatorAddress) {
			continue
		}
		next := u.TargetState.PromiseStatus()
		if !next.Terminal() {
			continue
		}
		if rec.Status.Terminal() && !policy.AllowReversal {
			continue
		}
		rec.Status = next
	}

	sortChain(records)
	return records
}

// Merge combines the local cache with the chain-derived records. Local
// records are kept as-is and always win on a digest collision; chain records
// for digests the cache does not know are appended.
func Merge(local, chain []promise.Record) []promise.Record {
	known := make(map[string]struct{}, len(local))
	out := make([]promise.Record, 0, len(local)+len(chain))
	for _, r := range local {
		if _, dup := known[r.Digest]; dup {
			continue
		}
		known[r.Digest] = struct{}{}
		out = append(out, r.Clone())
	}

	var extra []promise.Record
	for _, r := range chain {
		if _, ok := known[r.Digest]; ok {
			continue
		}
		known[r.Digest] = struct{}{}
		extra = append(extra, r.Clone())
	}
	sortChain(extra)
	return append(out, extra...)
}

// Run reconciles the event streams and merges the result with local.
func Run(creations []classifier.Creation, updates []classifier.StatusUpdate, local []promise.Record, policy Policy) []promise.Record {
	return Merge(local, Reconcile(creations, updates, policy))
}

func fromCreation(c classifier.Creation) promise.Record {
	id := c.TransactionID
	if id == "" {
		id = c.Digest
	}

	var anonymous bool
	var name string
	if c.Payload.Kind == payload.KindMetadata {
		anonymous = c.Payload.Metadata.IsAnonymous
		name = c.Payload.Metadata.DisplayName
	}

	return promise.Record{
		ID:                 id,
		Digest:             c.Digest,
		Content:            c.Payload.Content(),
		Revealed:           true,
		Anonymous:          anonymous,
		CreatorDisplayName: promise.DisplayName(anonymous, name, c.CreatorAddress),
		CreatorAddress:     c.CreatorAddress,
		CreatedAt:          c.BlockTimestamp,
		Category:           promise.CategoryOther,
		Status:             promise.StatusActive,
		SourceTxID:         c.TransactionID,
	}
}

func ordered(updates []classifier.StatusUpdate, order Order) []classifier.StatusUpdate {
	if order != OrderTimestamp {
		return updates
	}
	out := append([]classifier.StatusUpdate(nil), updates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClaimedAt.Before(out[j].ClaimedAt)
	})
	return out
}

func sortChain(records []promise.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Digest < b.Digest
	})
}
