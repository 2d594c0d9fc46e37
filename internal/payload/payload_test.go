package payload_test

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
)

func TestEncodeMetadata_wireFormat(t *testing.T) {
	b, err := payload.EncodeMetadata(payload.Metadata{Content: "ship <v2> & rest", IsAnonymous: false, DisplayName: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"c":"ship <v2> & rest","a":false,"n":"ada"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}

	b, err = payload.EncodeMetadata(payload.Metadata{Content: "x", IsAnonymous: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"c":"x","a":true}` {
		t.Errorf("display name should be omitted when empty, got %s", b)
	}
}

func TestMetadata_roundTrip(t *testing.T) {
	cases := []payload.Metadata{
		{Content: "I will ship by Friday", IsAnonymous: false, DisplayName: "Grace"},
		{Content: "I will ship by Friday", IsAnonymous: true},
		{Content: "", IsAnonymous: false},
		{Content: "multi\nline \"quoted\" éè \U0001F680", IsAnonymous: true, DisplayName: "山田"},
		{Content: "STATUS:FULFILLED:looks-like-status:1", DisplayName: "tricky"},
	}
	for _, m := range cases {
		b, err := payload.EncodeMetadata(m)
		if err != nil {
			t.Fatalf("encode %+v: %v", m, err)
		}
		d := payload.Decode(b)
		if d.Kind != payload.KindMetadata {
			t.Fatalf("decode %s: kind %v, want metadata", b, d.Kind)
		}
		if d.Metadata != m {
			t.Errorf("round trip: got %+v, want %+v", d.Metadata, m)
		}
	}
}

func TestEncodeStatus_wireFormat(t *testing.T) {
	d := digest.Of("I will ship by Friday")
	u := payload.StatusUpdate{
		State:     payload.StateFulfilled,
		Digest:    d,
		ClaimedAt: time.UnixMilli(1700000000000),
	}
	got := string(payload.EncodeStatus(u))
	want := "STATUS:FULFILLED:" + d + ":1700000000000"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecode_status(t *testing.T) {
	d := digest.Of("promise")
	dec := payload.Decode([]byte("STATUS:VOIDED:" + d + ":1700000000000"))
	if dec.Kind != payload.KindStatus {
		t.Fatalf("kind: got %v, want status", dec.Kind)
	}
	if dec.Status.State != payload.StateVoided {
		t.Errorf("state: got %q", dec.Status.State)
	}
	if dec.Status.Digest != d {
		t.Errorf("digest: got %q, want %q", dec.Status.Digest, d)
	}
	if dec.Status.ClaimedAt.UnixMilli() != 1700000000000 {
		t.Errorf("claimedAt: got %v", dec.Status.ClaimedAt)
	}
	if dec.Status.State.PromiseStatus() != promise.StatusVoided {
		t.Errorf("PromiseStatus: got %q", dec.Status.State.PromiseStatus())
	}
}

func TestDecode_statusDigestCaseNormalized(t *testing.T) {
	d := digest.Of("promise")
	upper := "0x" + string(bytes.ToUpper([]byte(d[2:])))
	dec := payload.Decode([]byte("STATUS:FULFILLED:" + upper + ":1"))
	if dec.Kind != payload.KindStatus || dec.Status.Digest != d {
		t.Errorf("got kind %v digest %q", dec.Kind, dec.Status.Digest)
	}
}

func TestDecode_malformedStatusFallsBackToText(t *testing.T) {
	cases := []string{
		"STATUS:DONE:0xabc:1",
		"STATUS:FULFILLED:0xabc:1",
		"STATUS:FULFILLED:" + digest.Of("x") + ":notanumber",
		"STATUS:FULFILLED:" + digest.Of("x"),
	}
	for _, c := range cases {
		dec := payload.Decode([]byte(c))
		if dec.Kind != payload.KindRawText {
			t.Errorf("%q: kind %v, want raw_text", c, dec.Kind)
		}
		if dec.Content() != c {
			t.Errorf("%q: content %q", c, dec.Content())
		}
	}
}

func TestDecode_malformedJSONFallsBackToText(t *testing.T) {
	cases := []string{
		`{"c": "unterminated`,
		`{"content":"wrong key"}`,
		`{"c": 42}`,
	}
	for _, c := range cases {
		dec := payload.Decode([]byte(c))
		if dec.Kind != payload.KindRawText {
			t.Errorf("%q: kind %v, want raw_text", c, dec.Kind)
		}
	}
}

func TestDecode_rawText(t *testing.T) {
	dec := payload.Decode([]byte("I will ship by Friday\x00\x00"))
	if dec.Kind != payload.KindRawText {
		t.Fatalf("kind: got %v", dec.Kind)
	}
	if dec.Content() != "I will ship by Friday" {
		t.Errorf("content: got %q", dec.Content())
	}
}

func TestDecode_unparseable(t *testing.T) {
	dec := payload.Decode([]byte{0xff, 0xfe, 0x80, 0x01})
	if dec.Kind != payload.KindUnparseable {
		t.Fatalf("kind: got %v, want unparseable", dec.Kind)
	}
	if dec.Content() != payload.UnparseableContent {
		t.Errorf("content: got %q", dec.Content())
	}
}

func TestDecode_empty(t *testing.T) {
	for _, p := range [][]byte{nil, {}, {0, 0, 0}} {
		dec := payload.Decode(p)
		if dec.Kind != payload.KindNone {
			t.Errorf("%v: kind %v, want none", p, dec.Kind)
		}
		if dec.Content() != payload.PlaceholderContent {
			t.Errorf("%v: content %q", p, dec.Content())
		}
	}
}

func TestSelector(t *testing.T) {
	sel := payload.Selector()
	full := digest.Bytes("anchorProof(bytes32)")
	if !bytes.Equal(sel[:], full[:4]) {
		t.Errorf("selector %x, want %x", sel, full[:4])
	}
}

func TestCallData_roundTrip(t *testing.T) {
	content := "I will ship by Friday"
	d := digest.Bytes(content)
	meta, err := payload.EncodeMetadata(payload.Metadata{Content: content, DisplayName: "ada"})
	if err != nil {
		t.Fatal(err)
	}

	cd := payload.CallData(d, meta)
	if len(cd) != payload.PrefixLen+len(meta) {
		t.Fatalf("length: got %d", len(cd))
	}

	// The hex form is the prefix hex followed by the payload hex.
	h := hex.EncodeToString(cd)
	if h[2*payload.PrefixLen:] != hex.EncodeToString(meta) {
		t.Error("payload hex not appended after prefix")
	}

	arg, p, ok := payload.SplitCallData(cd)
	if !ok || arg != d || !bytes.Equal(p, meta) {
		t.Fatalf("SplitCallData mismatch: ok=%v", ok)
	}

	dec := payload.DecodeCallData(cd)
	if dec.Kind != payload.KindMetadata || dec.Metadata.Content != content {
		t.Errorf("DecodeCallData: %+v", dec)
	}
}

func TestDecodeCallData_prefixOnly(t *testing.T) {
	cd := payload.CallData(digest.Bytes("x"), nil)
	dec := payload.DecodeCallData(cd)
	if dec.Kind != payload.KindNone {
		t.Errorf("kind: got %v, want none", dec.Kind)
	}
	if payload.DecodeCallData(nil).Kind != payload.KindNone {
		t.Error("nil call data should decode to none")
	}
	if payload.DecodeCallData([]byte{1, 2, 3}).Kind != payload.KindNone {
		t.Error("truncated call data should decode to none")
	}
}

func TestStateFor(t *testing.T) {
	if s, ok := payload.StateFor(promise.StatusFulfilled); !ok || s != payload.StateFulfilled {
		t.Errorf("fulfilled: got %q %v", s, ok)
	}
	if s, ok := payload.StateFor(promise.StatusVoided); !ok || s != payload.StateVoided {
		t.Errorf("voided: got %q %v", s, ok)
	}
	if _, ok := payload.StateFor(promise.StatusActive); ok {
		t.Error("active has no wire state")
	}
}

func TestNonceDigest_uniquePerPayload(t *testing.T) {
	d := digest.Of("p")
	a := payload.EncodeStatus(payload.StatusUpdate{State: payload.StateFulfilled, Digest: d, ClaimedAt: time.UnixMilli(1)})
	b := payload.EncodeStatus(payload.StatusUpdate{State: payload.StateFulfilled, Digest: d, ClaimedAt: time.UnixMilli(2)})
	if payload.NonceDigest(a) == payload.NonceDigest(b) {
		t.Error("nonce digests should differ per payload")
	}
}
