// Package digest computes the Keccak-256 fingerprint that anchors promise
// text on chain. Every write and verify path goes through Of so that the
// algorithm and encoding can never drift apart.
package digest

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the digest length in bytes.
const Size = 32

// HexLen is the length of a digest string including the 0x prefix.
const HexLen = 2 + 2*Size

// Bytes returns the raw Keccak-256 of the UTF-8 bytes of text.
// No normalization is applied: whitespace, casing and encoding all matter.
func Bytes(text string) [Size]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(text))
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Of returns the 0x-prefixed lowercase hex digest of text.
func Of(text string) string {
	b := Bytes(text)
	return "0x" + hex.EncodeToString(b[:])
}

// Normalize canonicalises a digest representation: lowercase hex with a 0x
// prefix. It returns false when s is not a 32-byte hex value.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*Size {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return "0x" + strings.ToLower(s), true
}

// Decode parses a digest string into raw bytes.
func Decode(s string) ([Size]byte, bool) {
	var out [Size]byte
	n, ok := Normalize(s)
	if !ok {
		return out, false
	}
	raw, _ := hex.DecodeString(n[2:])
	copy(out[:], raw)
	return out, true
}

// Short abbreviates a digest for display: 0xabcd...ef0123.
func Short(d string) string {
	if len(d) <= 12 {
		return d
	}
	return d[:6] + "..." + d[len(d)-6:]
}
