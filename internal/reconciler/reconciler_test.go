package reconciler_test

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jmerrifield20/BaseProofs/internal/classifier"
	"github.com/jmerrifield20/BaseProofs/internal/digest"
	"github.com/jmerrifield20/BaseProofs/internal/payload"
	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/reconciler"
	"github.com/jmerrifield20/BaseProofs/internal/scanner"
	"github.com/jmerrifield20/BaseProofs/internal/verifier"
)

const (
	alice = "0xA11CE00000000000000000000000000000000001"
	bob   = "0xB0B0000000000000000000000000000000000002"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// ── Helpers ──────────────────────────────────────────────────────────────

func creation(content, creator string, at time.Time, tx string) classifier.Creation {
	return classifier.Creation{
		Digest:         digest.Of(content),
		CreatorAddress: creator,
		BlockTimestamp: at,
		TransactionID:  tx,
		Payload: payload.Decoded{
			Kind:     payload.KindMetadata,
			Metadata: payload.Metadata{Content: content},
		},
	}
}

func update(target, sender string, state payload.StatusState, claimed time.Time) classifier.StatusUpdate {
	return classifier.StatusUpdate{
		CreatorAddress: sender,
		TargetState:    state,
		TargetDigest:   target,
		ClaimedAt:      claimed,
	}
}

func byDigest(records []promise.Record) map[string]promise.Record {
	out := make(map[string]promise.Record, len(records))
	for _, r := range records {
		out[r.Digest] = r
	}
	return out
}

func sortedByDigest(records []promise.Record) []promise.Record {
	out := append([]promise.Record(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].Digest < out[j].Digest })
	return out
}

// ── Reconcile ────────────────────────────────────────────────────────────

func TestReconcile_singleCreationIsActive(t *testing.T) {
	c := creation("I will ship by Friday", alice, t0, "0xtx1")
	got := reconciler.Reconcile([]classifier.Creation{c}, nil, reconciler.DefaultPolicy())

	want := []promise.Record{{
		ID:                 "0xtx1",
		Digest:             digest.Of("I will ship by Friday"),
		Content:            "I will ship by Friday",
		Revealed:           true,
		CreatorDisplayName: alice,
		CreatorAddress:     alice,
		CreatedAt:          t0,
		Category:           promise.CategoryOther,
		Status:             promise.StatusActive,
		SourceTxID:         "0xtx1",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reconcile mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_anonymousDisplayName(t *testing.T) {
	c := creation("secret", alice, t0, "0xtx1")
	c.Payload.Metadata.IsAnonymous = true
	c.Payload.Metadata.DisplayName = "ada"

	got := reconciler.Reconcile([]classifier.Creation{c}, nil, reconciler.DefaultPolicy())
	if got[0].CreatorDisplayName != promise.AnonymousName || !got[0].Anonymous {
		t.Errorf("expected anonymous record, got %+v", got[0])
	}
}

func TestReconcile_embeddedDisplayName(t *testing.T) {
	c := creation("named", alice, t0, "0xtx1")
	c.Payload.Metadata.DisplayName = "ada"

	got := reconciler.Reconcile([]classifier.Creation{c}, nil, reconciler.DefaultPolicy())
	if got[0].CreatorDisplayName != "ada" {
		t.Errorf("display name: got %q", got[0].CreatorDisplayName)
	}
}

func TestReconcile_duplicateCreationEarliestWins(t *testing.T) {
	late := creation("dup", bob, t0.Add(time.Hour), "0xlate")
	early := creation("dup", alice, t0, "0xearly")

	got := reconciler.Reconcile([]classifier.Creation{late, early}, nil, reconciler.DefaultPolicy())
	if len(got) != 1 {
		t.Fatalf("expected one record per digest, got %d", len(got))
	}
	if got[0].ID != "0xearly" || got[0].CreatorAddress != alice {
		t.Errorf("earliest creation should win, got %+v", got[0])
	}
}

func TestReconcile_duplicateCreationTieKeepsFirst(t *testing.T) {
	first := creation("tie", alice, t0, "0xfirst")
	second := creation("tie", bob, t0, "0xsecond")

	got := reconciler.Reconcile([]classifier.Creation{first, second}, nil, reconciler.DefaultPolicy())
	if len(got) != 1 || got[0].ID != "0xfirst" {
		t.Errorf("expected first-seen on tie, got %+v", got)
	}
}

func TestReconcile_updateFromCreator(t *testing.T) {
	d := digest.Of("run a marathon")
	c := creation("run a marathon", alice, t0, "0xtx1")
	u := update(d, alice, payload.StateFulfilled, time.UnixMilli(1700000000000))

	got := reconciler.Reconcile([]classifier.Creation{c}, []classifier.StatusUpdate{u}, reconciler.DefaultPolicy())
	if got[0].Status != promise.StatusFulfilled {
		t.Errorf("status: got %q, want fulfilled", got[0].Status)
	}
}

func TestReconcile_updateSenderCaseInsensitive(t *testing.T) {
	d := digest.Of("x")
	c := creation("x", alice, t0, "0xtx1")
	u := update(d, "0xa11ce00000000000000000000000000000000001", payload.StateVoided, t0)

	got := reconciler.Reconcile([]classifier.Creation{c}, []classifier.StatusUpdate{u}, reconciler.DefaultPolicy())
	if got[0].Status != promise.StatusVoided {
		t.Errorf("status: got %q, want voided", got[0].Status)
	}
}

func TestReconcile_updateFromStrangerIgnored(t *testing.T) {
	d := digest.Of("mine")
	c := creation("mine", alice, t0, "0xtx1")
	u := update(d, bob, payload.StateVoided, t0)

	got := reconciler.Reconcile([]classifier.Creation{c}, []classifier.StatusUpdate{u}, reconciler.DefaultPolicy())
	if got[0].Status != promise.StatusActive {
		t.Errorf("unauthorized update applied: %q", got[0].Status)
	}
}

func TestReconcile_unmatchedUpdateLeavesSetUnchanged(t *testing.T) {
	creations := []classifier.Creation{
		creation("a", alice, t0, "0x1"),
		creation("b", bob, t0.Add(time.Minute), "0x2"),
	}
	stray := update(digest.Of("nobody wrote this"), alice, payload.StateFulfilled, t0)

	before := reconciler.Reconcile(creations, nil, reconciler.DefaultPolicy())
	after := reconciler.Reconcile(creations, []classifier.StatusUpdate{stray}, reconciler.DefaultPolicy())
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("unmatched update changed the set (-before +after):\n%s", diff)
	}
}

func TestReconcile_lastAppliedWins(t *testing.T) {
	d := digest.Of("goal")
	c := creation("goal", alice, t0, "0xtx1")
	// VOIDED carries the earlier claim but is applied last.
	fulfilled := update(d, alice, payload.StateFulfilled, t0.Add(2*time.Hour))
	voided := update(d, alice, payload.StateVoided, t0.Add(time.Hour))

	got := reconciler.Reconcile(
		[]classifier.Creation{c},
		[]classifier.StatusUpdate{fulfilled, voided},
		reconciler.DefaultPolicy(),
	)
	if got[0].Status != promise.StatusVoided {
		t.Errorf("status: got %q, want voided", got[0].Status)
	}
}

func TestReconcile_timestampOrder(t *testing.T) {
	d := digest.Of("goal")
	c := creation("goal", alice, t0, "0xtx1")
	fulfilled := update(d, alice, payload.StateFulfilled, t0.Add(2*time.Hour))
	voided := update(d, alice, payload.StateVoided, t0.Add(time.Hour))

	policy := reconciler.Policy{Order: reconciler.OrderTimestamp, AllowReversal: true}
	got := reconciler.Reconcile([]classifier.Creation{c}, []classifier.StatusUpdate{fulfilled, voided}, policy)
	if got[0].Status != promise.StatusFulfilled {
		t.Errorf("status: got %q, want fulfilled (latest claim)", got[0].Status)
	}
}

func TestReconcile_noReversal(t *testing.T) {
	d := digest.Of("goal")
	c := creation("goal", alice, t0, "0xtx1")
	updates := []classifier.StatusUpdate{
		update(d, alice, payload.StateFulfilled, t0),
		update(d, alice, payload.StateVoided, t0.Add(time.Hour)),
	}

	policy := reconciler.Policy{Order: reconciler.OrderApply, AllowReversal: false}
	got := reconciler.Reconcile([]classifier.Creation{c}, updates, policy)
	if got[0].Status != promise.StatusFulfilled {
		t.Errorf("status: got %q, want fulfilled (first terminal state kept)", got[0].Status)
	}
}

func TestReconcile_doesNotMutateInputs(t *testing.T) {
	creations := []classifier.Creation{creation("a", alice, t0, "0x1")}
	updates := []classifier.StatusUpdate{
		update(digest.Of("a"), alice, payload.StateVoided, t0.Add(time.Hour)),
		update(digest.Of("a"), alice, payload.StateFulfilled, t0),
	}
	snapshot := append([]classifier.StatusUpdate(nil), updates...)

	reconciler.Reconcile(creations, updates, reconciler.Policy{Order: reconciler.OrderTimestamp, AllowReversal: true})
	if diff := cmp.Diff(snapshot, updates); diff != "" {
		t.Errorf("updates slice was reordered (-want +got):\n%s", diff)
	}
}

func TestReconcile_idempotent(t *testing.T) {
	creations := []classifier.Creation{
		creation("a", alice, t0, "0x1"),
		creation("b", bob, t0.Add(time.Minute), "0x2"),
		creation("a", bob, t0.Add(time.Hour), "0x3"),
	}
	updates := []classifier.StatusUpdate{
		update(digest.Of("a"), alice, payload.StateFulfilled, t0),
		update(digest.Of("b"), alice, payload.StateVoided, t0),
	}
	local := []promise.Record{{ID: "local-1", Digest: digest.Of("c"), Content: "c", Status: promise.StatusActive}}

	first := reconciler.Run(creations, updates, local, reconciler.DefaultPolicy())
	second := reconciler.Run(creations, updates, local, reconciler.DefaultPolicy())
	if diff := cmp.Diff(sortedByDigest(first), sortedByDigest(second)); diff != "" {
		t.Errorf("reconcile not idempotent (-first +second):\n%s", diff)
	}
}

// ── Merge ────────────────────────────────────────────────────────────────

func TestMerge_localWins(t *testing.T) {
	d := digest.Of("rich")
	local := []promise.Record{{ID: "uuid-1", Digest: d, Content: "rich", Category: promise.CategoryWork}}
	chain := []promise.Record{{ID: "0xtx", Digest: d, Content: payload.PlaceholderContent}}

	got := reconciler.Merge(local, chain)
	if diff := cmp.Diff(local, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_appendsUnknownChainRecords(t *testing.T) {
	local := []promise.Record{{ID: "uuid-1", Digest: digest.Of("local")}}
	chain := []promise.Record{
		{ID: "0x2", Digest: digest.Of("later"), CreatedAt: t0.Add(time.Hour)},
		{ID: "0x1", Digest: digest.Of("earlier"), CreatedAt: t0},
	}

	got := reconciler.Merge(local, chain)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	if diff := cmp.Diff([]string{"uuid-1", "0x1", "0x2"}, ids); diff != "" {
		t.Errorf("merge order (-want +got):\n%s", diff)
	}
}

func TestMerge_doesNotAliasInputs(t *testing.T) {
	local := []promise.Record{{ID: "uuid-1", Digest: digest.Of("a"), Milestones: []string{"one"}}}
	got := reconciler.Merge(local, nil)
	got[0].Milestones[0] = "changed"
	got[0].Status = promise.StatusVoided

	if local[0].Milestones[0] != "one" || local[0].Status != "" {
		t.Error("Merge output aliases the local input")
	}
}

// ── End to end ───────────────────────────────────────────────────────────

func rawCreation(t *testing.T, content, creator string, at time.Time, tx string) scanner.RawEvent {
	t.Helper()
	meta, err := payload.EncodeMetadata(payload.Metadata{Content: content})
	if err != nil {
		t.Fatal(err)
	}
	return scanner.RawEvent{
		CreatorAddress: creator,
		Digest:         digest.Of(content),
		BlockTimestamp: at,
		TransactionID:  tx,
		RawCallData:    payload.CallData(digest.Bytes(content), meta),
	}
}

func rawStatus(status, creator string) scanner.RawEvent {
	p := []byte(status)
	return scanner.RawEvent{
		CreatorAddress: creator,
		Digest:         digest.Of(status),
		BlockTimestamp: t0.Add(time.Hour),
		TransactionID:  "0xstatus",
		RawCallData:    payload.CallData(payload.NonceDigest(p), p),
	}
}

func TestScenario_creationOnly(t *testing.T) {
	events := []scanner.RawEvent{rawCreation(t, "I will ship by Friday", alice, t0, "0xtx1")}
	creations, updates := classifier.ClassifyAll(events)
	got := reconciler.Run(creations, updates, nil, reconciler.DefaultPolicy())

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Status != promise.StatusActive {
		t.Errorf("status: got %q", got[0].Status)
	}
	if got[0].Content != "I will ship by Friday" {
		t.Errorf("content: got %q", got[0].Content)
	}
}

func TestScenario_fulfilledByCreator(t *testing.T) {
	d := digest.Of("I will ship by Friday")
	events := []scanner.RawEvent{
		rawCreation(t, "I will ship by Friday", alice, t0, "0xtx1"),
		rawStatus("STATUS:FULFILLED:"+d+":1700000000000", alice),
	}
	creations, updates := classifier.ClassifyAll(events)
	got := reconciler.Run(creations, updates, nil, reconciler.DefaultPolicy())

	if len(got) != 1 {
		t.Fatalf("status event must not create a record, got %d records", len(got))
	}
	if got[0].Status != promise.StatusFulfilled {
		t.Errorf("status: got %q, want fulfilled", got[0].Status)
	}
}

func TestScenario_verify(t *testing.T) {
	events := []scanner.RawEvent{rawCreation(t, "I will ship by Friday", alice, t0, "0xtx1")}
	creations, updates := classifier.ClassifyAll(events)
	records := reconciler.Run(creations, updates, nil, reconciler.DefaultPolicy())

	res := verifier.Verify("I will ship by Friday", records)
	if !res.Matched || res.Record == nil || res.Record.ID != "0xtx1" {
		t.Errorf("expected match on 0xtx1, got %+v", res)
	}
	if res := verifier.Verify("I will ship by Friday ", records); res.Matched {
		t.Error("trailing space must not match")
	}
}

func TestScenario_localRichContentPreserved(t *testing.T) {
	d := digest.Of("learn Go properly")
	local := []promise.Record{{
		ID:               "uuid-1",
		Digest:           d,
		Content:          "learn Go properly",
		Category:         promise.CategoryPersonal,
		WitnessStatement: "witnessed",
		Status:           promise.StatusActive,
	}}
	// The chain copy carries no payload.
	events := []scanner.RawEvent{{
		CreatorAddress: alice,
		Digest:         d,
		BlockTimestamp: t0,
		TransactionID:  "0xtx1",
	}}

	creations, updates := classifier.ClassifyAll(events)
	if creations[0].Payload.Content() != payload.PlaceholderContent {
		t.Fatalf("expected placeholder content on the chain copy")
	}
	got := reconciler.Run(creations, updates, local, reconciler.DefaultPolicy())

	records := byDigest(got)
	if len(got) != 1 || len(records) != 1 {
		t.Fatalf("expected exactly one record for the digest, got %d", len(got))
	}
	if diff := cmp.Diff(local[0], records[d]); diff != "" {
		t.Errorf("local record not preserved (-want +got):\n%s", diff)
	}
}
