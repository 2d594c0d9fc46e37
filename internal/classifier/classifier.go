// Package classifier splits scanned anchor events into promise creations
// and status updates by decoding each event's side-channel payload.
package classifier

import (
	"time"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/scanner"
)

// Creation is an anchor event that introduces a new promise.
type Creation struct {
	Digest         string
	CreatorAddress string
	BlockTimestamp time.Time
	BlockNumber    uint64
	TransactionID  string
	Payload        payload.Decoded
}

// StatusUpdate is an anchor event whose payload moves an existing promise to
// a terminal state. TargetDigest, taken from inside the payload, is the match
// key. AnchorDigest is the event's own digest argument, which for update
// writes is a per-transaction nonce.
type StatusUpdate struct {
	CreatorAddress string
	TargetState    payload.StatusState
	TargetDigest   string
	ClaimedAt      time.Time
	TransactionID  string
	AnchorDigest   string
	BlockTimestamp time.Time
}

// SelfAnchored reports whether the update was written with the target
// digest as its anchor argument. Writers normally use a nonce instead.
func (u StatusUpdate) SelfAnchored() bool {
	return u.AnchorDigest == u.TargetDigest
}

// Event is the result of classifying a single raw event: exactly one of
// Creation or Update is set.
type Event struct {
	Creation *Creation
	Update   *StatusUpdate
}

// IsUpdate reports whether the event is a status update.
func (e Event) IsUpdate() bool {
	return e.Update != nil
}

// Classify decodes ev's call data and returns a StatusUpdate when the payload
// is a status message, otherwise a Creation.
func Classify(ev scanner.RawEvent) Event {
	decoded := payload.DecodeCallData(ev.RawCallData)
	anchor := ev.Digest
	if d, ok := digest.Normalize(ev.Digest); ok {
		anchor = d
	}

	if decoded.Kind == payload.KindStatus {
		return Event{Update: &StatusUpdate{
			CreatorAddress: ev.CreatorAddress,
			TargetState:    decoded.Status.State,
			TargetDigest:   decoded.Status.Digest,
			ClaimedAt:      decoded.Status.ClaimedAt,
			TransactionID:  ev.TransactionID,
			AnchorDigest:   anchor,
			BlockTimestamp: ev.BlockTimestamp,
		}}
	}

	return Event{Creation: &Creation{
		Digest:         anchor,
		CreatorAddress: ev.CreatorAddress,
		BlockTimestamp: ev.BlockTimestamp,
		BlockNumber:    ev.BlockNumber,
		TransactionID:  ev.TransactionID,
		Payload:        decoded,
	}}
}

// ClassifyAll classifies events, preserving input order within each stream.
func ClassifyAll(events []scanner.RawEvent) ([]Creation, []StatusUpdate) {
	var creations []Creation
	var updates []StatusUpdate
	for _, ev := range events {
		e := Classify(ev)
		if e.IsUpdate() {
			updates = append(updates, *e.Update)
			continue
		}
		creations = append(creations, *e.Creation)
	}
	return creations, updates
}
