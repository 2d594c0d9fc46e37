// Package payload encodes and decodes the side-channel bytes that ride
// along with anchorProof(bytes32) calls.
//
// A ledger write is a single-argument contract call. Anything beyond the
// 4-byte selector and the 32-byte digest argument is ignored by the contract
// but preserved in transaction history, and carries one of two payloads:
//
//   - Metadata: compact JSON {"c": content, "a": anonymous, "n": name}
//   - Status:   STATUS:<FULFILLED|VOIDED>:<digest-hex>:<epoch-millis>
//
// Decoding is best-effort. Decode walks an ordered list of attempts and
// returns the first tagged result that applies; it never fails.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

// AnchorSignature is the contract method every ledger write calls.
const AnchorSignature = "anchorProof(bytes32)"

// SelectorLen and PrefixLen describe the fixed call prefix that precedes the
// payload: the method selector followed by the digest argument.
const (
	SelectorLen = 4
	PrefixLen   = SelectorLen + digest.Size
)

// Content placeholders used when no usable content can be recovered.
const (
	PlaceholderContent = "[content not embedded in transaction]"
	UnparseableContent = "[unparseable payload]"
)

const statusPrefix = "STATUS:"

// Kind tags the outcome of a decode.
type Kind int

const (
	KindNone Kind = iota
	KindMetadata
	KindStatus
	KindRawText
	KindUnparseable
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMetadata:
		return "metadata"
	case KindStatus:
		return "status"
	case KindRawText:
		return "raw_text"
	case KindUnparseable:
		return "unparseable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Metadata is the structured payload written alongside a new promise.
type Metadata struct {
	Content     string `json:"c"`
	IsAnonymous bool   `json:"a"`
	DisplayName string `json:"n,omitempty"`
}

// StatusState is the target state named in a status update payload.
type StatusState string

const (
	StateFulfilled StatusState = "FULFILLED"
	StateVoided    StatusState = "VOIDED"
)

// PromiseStatus maps the wire state to the record status.
func (s StatusState) PromiseStatus() promise.Status {
	if s == StateVoided {
		return promise.StatusVoided
	}
	return promise.StatusFulfilled
}

// StateFor maps a terminal record status to its wire state.
func StateFor(s promise.Status) (StatusState, bool) {
	switch s {
	case promise.StatusFulfilled:
		return StateFulfilled, true
	case promise.StatusVoided:
		return StateVoided, true
	}
	return "", false
}

// StatusUpdate is the tagged-string payload that moves a promise to a
// terminal state. Digest identifies the target promise.
type StatusUpdate struct {
	State     StatusState
	Digest    string
	ClaimedAt time.Time
}

// Decoded is the tagged result of Decode. Exactly one of Metadata, Status or
// Text is meaningful, as indicated by Kind.
type Decoded struct {
	Kind     Kind
	Metadata Metadata
	Status   StatusUpdate
	Text     string
}

// Content returns the best available promise content for the decoded payload.
func (d Decoded) Content() string {
	switch d.Kind {
	case KindMetadata:
		return d.Metadata.Content
	case KindRawText:
		return d.Text
	case KindUnparseable:
		return UnparseableContent
	}
	return PlaceholderContent
}

// EncodeMetadata serialises m as compact JSON. HTML characters are not
// escaped so the bytes match what browser clients produce.
func EncodeMetadata(m Metadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeStatus serialises u as STATUS:<STATE>:<digest>:<epochMillis>.
func EncodeStatus(u StatusUpdate) []byte {
	d, ok := digest.Normalize(u.Digest)
	if !ok {
		d = u.Digest
	}
	return []byte(fmt.Sprintf("%s%s:%s:%d", statusPrefix, u.State, d, u.ClaimedAt.UnixMilli()))
}

// decodeAttempt inspects a payload and reports whether it applies.
type decodeAttempt func(p []byte) (Decoded, bool)

// attempts is the ordered fallback chain used by Decode.
var attempts = []decodeAttempt{
	decodeNone,
	decodeMetadata,
	decodeStatus,
	decodeRawText,
}

// Decode interprets a payload (the bytes after the call prefix).
func Decode(p []byte) Decoded {
	for _, attempt := range attempts {
		if d, ok := attempt(p); ok {
			return d
		}
	}
	return Decoded{Kind: KindUnparseable}
}

func decodeNone(p []byte) (Decoded, bool) {
	if len(bytes.Trim(p, "\x00")) == 0 {
		return Decoded{Kind: KindNone}, true
	}
	return Decoded{}, false
}

func decodeMetadata(p []byte) (Decoded, bool) {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Decoded{}, false
	}
	var raw struct {
		Content     *string `json:"c"`
		IsAnonymous bool    `json:"a"`
		DisplayName string  `json:"n"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw.Content == nil {
		return Decoded{}, false
	}
	return Decoded{
		Kind: KindMetadata,
		Metadata: Metadata{
			Content:     *raw.Content,
			IsAnonymous: raw.IsAnonymous,
			DisplayName: raw.DisplayName,
		},
	}, true
}

func decodeStatus(p []byte) (Decoded, bool) {
	u, ok := ParseStatus(string(bytes.TrimSpace(p)))
	if !ok {
		return Decoded{}, false
	}
	return Decoded{Kind: KindStatus, Status: u}, true
}

func decodeRawText(p []byte) (Decoded, bool) {
	text := bytes.TrimRight(p, "\x00")
	if !utf8.Valid(text) {
		return Decoded{}, false
	}
	return Decoded{Kind: KindRawText, Text: string(text)}, true
}

// ParseStatus parses a STATUS:<STATE>:<digest>:<epochMillis> string.
func ParseStatus(s string) (StatusUpdate, bool) {
	if !strings.HasPrefix(s, statusPrefix) {
		return StatusUpdate{}, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return StatusUpdate{}, false
	}

	state := StatusState(parts[1])
	if state != StateFulfilled && state != StateVoided {
		return StatusUpdate{}, false
	}
	d, ok := digest.Normalize(parts[2])
	if !ok {
		return StatusUpdate{}, false
	}
	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return StatusUpdate{}, false
	}
	return StatusUpdate{
		State:     state,
		Digest:    d,
		ClaimedAt: time.UnixMilli(millis).UTC(),
	}, true
}
