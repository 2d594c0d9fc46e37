// Package promise defines the promise record shared by the ledger engine,
// the local cache and the API.
package promise

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a promise.
type Status string

const (
	StatusActive    Status = "active"
	StatusFulfilled Status = "fulfilled"
	StatusVoided    Status = "voided"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFulfilled, StatusVoided:
		return true
	}
	return false
}

// Terminal reports whether s is a final outcome (fulfilled or voided).
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusVoided
}

// Category is a local-only label chosen when a promise is enshrined.
type Category string

const (
	CategoryPersonal  Category = "Personal"
	CategoryWork      Category = "Work"
	CategoryFinancial Category = "Financial"
	CategoryFitness   Category = "Fitness"
	CategoryOther     Category = "Other"
)

// ParseCategory returns the category matching s (case-insensitive).
// Unknown or empty values map to CategoryOther.
func ParseCategory(s string) Category {
	for _, c := range []Category{CategoryPersonal, CategoryWork, CategoryFinancial, CategoryFitness} {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// AnonymousName is the display name shown for anonymous promises.
const AnonymousName = "Anonymous"

// Record is one promise as seen by the engine. Digest is the identity across
// chain-derived and locally cached records; ID is only unique within a source.
type Record struct {
	ID                 string     `json:"id"`
	Digest             string     `json:"digest"`
	Content            string     `json:"content"`
	Revealed           bool       `json:"revealed"`
	Anonymous          bool       `json:"anonymous"`
	CreatorDisplayName string     `json:"creator_display_name"`
	CreatorAddress     string     `json:"creator_address"`
	CreatedAt          time.Time  `json:"created_at"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Category           Category   `json:"category"`
	Status             Status     `json:"status"`
	SourceTxID         string     `json:"source_tx_id,omitempty"`
	WitnessStatement   string     `json:"witness_statement,omitempty"`
	Milestones         []string   `json:"milestones,omitempty"`
	SealReference      string     `json:"seal_reference,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Deadline != nil {
		d := *r.Deadline
		out.Deadline = &d
	}
	if r.Milestones != nil {
		out.Milestones = append([]string(nil), r.Milestones...)
	}
	return out
}

// OwnedBy reports whether address is the record's creator.
func (r Record) OwnedBy(address string) bool {
	return address != "" && strings.EqualFold(r.CreatorAddress, address)
}

// DisplayName derives the creator display name from the anonymity flag and
// the optional embedded name, falling back to the address.
func DisplayName(anonymous bool, name, address string) string {
	if anonymous {
		return AnonymousName
	}
	if strings.TrimSpace(name) != "" {
		return name
	}
	return address
}

// CloneAll deep-copies a record slice.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
