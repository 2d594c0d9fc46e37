package proofs

import (
	"math"
	"sort"
	"strings"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/verifier"
)

// Sort orders for List.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortDigest = "digest"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Query    string // matched against content, creator name/address and digest
	Status   promise.Status
	Category promise.Category
	Creator  string
	Sort     string
}

// Stats summarises the merged view.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Fulfilled int `json:"fulfilled"`
	Voided    int `json:"voided"`
	// Integrity is the share of fulfilled promises as a whole percentage.
	// An empty ledger reports 100.
	Integrity int `json:"integrity"`
}

// Get finds a record by id, digest or creating transaction hash.
func (s *Service) Get(ref string) (*promise.Record, error) {
	rec, ok := find(s.snapshot(), ref)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List returns the records matching f, sorted as requested (newest first by
// default).
func (s *Service) List(f Filter) []promise.Record {
	q := strings.ToLower(strings.TrimSpace(f.Query))

	var out []promise.Record
	for _, r := range s.snapshot() {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.Creator != "" && !strings.EqualFold(r.CreatorAddress, f.Creator) {
			continue
		}
		if q != "" && !matches(r, q) {
			continue
		}
		out = append(out, r.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch f.Sort {
		case SortOldest:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortDigest:
			return a.Digest < b.Digest
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

// Stats counts records by status.
func (s *Service) Stats() Stats {
	var st Stats
	for _, r := range s.snapshot() {
		st.Total++
		switch r.Status {
		case promise.StatusActive:
			st.Active++
		case promise.StatusFulfilled:
			st.Fulfilled++
		case promise.StatusVoided:
			st.Voided++
		}
	}
	st.Integrity = 100
	if st.Total > 0 {
		st.Integrity = int(math.Round(float64(st.Fulfilled) / float64(st.Total) * 100))
	}
	return st
}

// Verify checks candidate against the merged view.
func (s *Service) Verify(candidate string) verifier.Result {
	return verifier.Verify(candidate, s.snapshot())
}

func find(records []promise.Record, ref string) (promise.Record, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return promise.Record{}, false
	}
	d, isDigest := digest.Normalize(ref)
	for _, r := range records {
		if r.ID == ref || (isDigest && r.Digest == d) || strings.EqualFold(r.SourceTxID, ref) {
			return r.Clone(), true
		}
	}
	return promise.Record{}, false
}

func matches(r promise.Record, q string) bool {
	// Hidden content is not searchable.
	if r.Revealed && strings.Contains(strings.ToLower(r.Content), q) {
		return true
	}
	return strings.Contains(strings.ToLower(r.CreatorDisplayName), q) ||
		strings.Contains(strings.ToLower(r.CreatorAddress), q) ||
		strings.Contains(r.Digest, q)
}
