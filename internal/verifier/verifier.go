// Package verifier answers whether a candidate text matches an anchored
// promise.
package verifier

import (
	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// Result is the outcome of a verification. A non-match is not an error.
type Result struct {
	Matched bool            `json:"matched"`
	Digest  string          `json:"digest"`
	Record  *promise.Record `json:"record,omitempty"`
}

// Verify digests candidate and scans records for an exact digest match.
// The first matching record is returned.
func Verify(candidate string, records []promise.Record) Result {
	d := digest.Of(candidate)
	for i := range records {
		if records[i].Digest == d {
			rec := records[i].Clone()
			return Result{Matched: true, Digest: d, Record: &rec}
		}
	}
	return Result{Digest: d}
}
