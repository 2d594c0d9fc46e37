// Package witness enriches a new promise with a notarial statement, three
// milestones and an optional seal image. Witnessing never blocks a write:
// every failure degrades to a fixed attestation.
package witness

import (
	"context"
)

// FallbackStatement is used whenever the witness service cannot answer.
const FallbackStatement = "Your word is recorded in the silence of the ledger."

// FallbackMilestones accompany FallbackStatement.
var FallbackMilestones = []string{"Initiate commitment", "Maintain integrity", "Complete objective"}

// Attestation is the witness output attached to a local record.
type Attestation struct {
	Statement     string   `json:"statement"`
	Milestones    []string `json:"milestones"`
	SealReference string   `json:"seal_reference,omitempty"`
}

// Witness attests promise content. Implementations must not fail; they return
// the fallback attestation instead.
type Witness interface {
	Attest(ctx context.Context, content string) Attestation
}

// Fallback is a Witness that always returns the fixed attestation.
type Fallback struct{}

// Attest implements Witness.
func (Fallback) Attest(context.Context, string) Attestation {
	return fallback()
}

func fallback() Attestation {
	return Attestation{
		Statement:  FallbackStatement,
		Milestones: append([]string(nil), FallbackMilestones...),
	}
}
