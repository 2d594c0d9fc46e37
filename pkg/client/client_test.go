package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/BaseProofs/pkg/client"
)

const testDigest = "0x9c22ff5f21f0b81b113e63f7db6da94fedef11b2119b4088b89664fb9a3cb658"

// ── Stub server ─────────────────────────────────────────────────────────

type stubServer struct {
	*httptest.Server
	gets     atomic.Int32
	lastBody map[string]any
	lastURL  string
}

func newStubServer(t *testing.T, readOnly bool) *stubServer {
	t.Helper()
	s := &stubServer{}
	mux := http.NewServeMux()

	proof := map[string]any{
		"id":                   "550e8400-e29b-41d4-a716-446655440000",
		"digest":               testDigest,
		"content":              "test",
		"revealed":             true,
		"creator_display_name": "grace",
		"status":               "active",
		"category":             "Work",
	}

	decodeBody := func(r *http.Request) {
		s.lastBody = nil
		_ = json.NewDecoder(r.Body).Decode(&s.lastBody)
	}

	mux.HandleFunc("GET /api/v1/proofs", func(w http.ResponseWriter, r *http.Request) {
		s.lastURL = r.URL.String()
		json.NewEncoder(w).Encode(map[string]any{"proofs": []any{proof}, "count": 1})
	})
	mux.HandleFunc("POST /api/v1/proofs", func(w http.ResponseWriter, r *http.Request) {
		decodeBody(r)
		if readOnly {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"error": "this node is read-only"})
			return
		}
		if s.lastBody["content"] == "dup" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"error": "proof already enshrined"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"proof": proof})
	})
	mux.HandleFunc("GET /api/v1/proofs/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"total": 4, "active": 1, "fulfilled": 2, "voided": 1, "integrity": 50})
	})
	mux.HandleFunc("GET /api/v1/proofs/{ref}", func(w http.ResponseWriter, r *http.Request) {
		s.gets.Add(1)
		if r.PathValue("ref") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": "proof not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"proof": proof})
	})
	mux.HandleFunc("POST /api/v1/proofs/{ref}/status", func(w http.ResponseWriter, r *http.Request) {
		decodeBody(r)
		out := map[string]any{}
		for k, v := range proof {
			out[k] = v
		}
		out["status"] = s.lastBody["status"]
		json.NewEncoder(w).Encode(map[string]any{"proof": out})
	})
	mux.HandleFunc("POST /api/v1/proofs/{ref}/reveal", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"proof": map[string]any{"id": r.PathValue("ref"), "content": "", "hidden": true}})
	})
	mux.HandleFunc("POST /api/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		decodeBody(r)
		if s.lastBody["text"] != "test" {
			json.NewEncoder(w).Encode(map[string]any{"matched": false, "digest": "0xother"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"matched": true, "digest": testDigest, "proof": proof})
	})
	mux.HandleFunc("POST /api/v1/sync", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"sync": map[string]any{"events": 3, "creations": 2, "updates": 1, "total_records": 2}})
	})
	mux.HandleFunc("GET /api/v1/sync", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"synced": false})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidBase(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for base without scheme")
	}
}

func TestList_query(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL)

	proofs, err := c.List(context.Background(), client.ListOptions{Status: "active", Sort: "oldest"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(proofs) != 1 || proofs[0].Digest != testDigest {
		t.Errorf("unexpected proofs: %+v", proofs)
	}
	if !strings.Contains(srv.lastURL, "status=active") || !strings.Contains(srv.lastURL, "sort=oldest") {
		t.Errorf("query not forwarded: %s", srv.lastURL)
	}
	if strings.Contains(srv.lastURL, "creator=") {
		t.Errorf("empty filter sent: %s", srv.lastURL)
	}
}

func TestGet_notFound(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL)

	_, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_cache(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL, client.WithCacheTTL(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, testDigest); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if n := srv.gets.Load(); n != 1 {
		t.Errorf("expected 1 server hit, got %d", n)
	}

	if _, err := c.ToggleReveal(ctx, testDigest); err != nil {
		t.Fatalf("ToggleReveal: %v", err)
	}
	if _, err := c.Get(ctx, testDigest); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := srv.gets.Load(); n != 2 {
		t.Errorf("expected write to clear the cache, got %d hits", n)
	}
}

func TestStats(t *testing.T) {
	srv := newStubServer(t, false)
	st, err := client.MustNew(srv.URL).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Integrity != 50 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestVerify(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	res, err := c.Verify(ctx, "test")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Matched || res.Proof == nil || res.Proof.CreatorDisplayName != "grace" {
		t.Errorf("expected match, got %+v", res)
	}

	res, err = c.Verify(ctx, "Test")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Matched || res.Proof != nil {
		t.Errorf("expected no match, got %+v", res)
	}
}

func TestEnshrine(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL)
	deadline := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	p, err := c.Enshrine(context.Background(), client.EnshrineRequest{
		Content:  "test",
		Category: "Work",
		Deadline: &deadline,
	})
	if err != nil {
		t.Fatalf("Enshrine: %v", err)
	}
	if p.Status != "active" {
		t.Errorf("status: got %q", p.Status)
	}
	if srv.lastBody["deadline"] != "2025-01-31T00:00:00Z" {
		t.Errorf("deadline: got %v", srv.lastBody["deadline"])
	}
	if _, ok := srv.lastBody["anonymous"]; ok {
		t.Error("zero anonymous flag should be omitted")
	}
}

func TestEnshrine_conflict(t *testing.T) {
	srv := newStubServer(t, false)
	_, err := client.MustNew(srv.URL).Enshrine(context.Background(), client.EnshrineRequest{Content: "dup"})

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "proof already enshrined" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestEnshrine_readOnly(t *testing.T) {
	srv := newStubServer(t, true)
	_, err := client.MustNew(srv.URL).Enshrine(context.Background(), client.EnshrineRequest{Content: "x"})
	if !errors.Is(err, client.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	srv := newStubServer(t, false)
	p, err := client.MustNew(srv.URL).UpdateStatus(context.Background(), testDigest, "fulfilled", "")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if p.Status != "fulfilled" {
		t.Errorf("status: got %q", p.Status)
	}
	if _, ok := srv.lastBody["actor"]; ok {
		t.Error("empty actor should be omitted")
	}
}

func TestSync(t *testing.T) {
	srv := newStubServer(t, false)
	c := client.MustNew(srv.URL)
	ctx := context.Background()

	res, err := c.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Events != 3 || res.TotalRecords != 2 {
		t.Errorf("unexpected sync result: %+v", res)
	}

	_, ok, err := c.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if ok {
		t.Error("expected no last sync")
	}
}
