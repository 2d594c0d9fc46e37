package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no proof matches the reference.
	ErrNotFound = errors.New("proof not found")
	// ErrReadOnly is returned by write calls against a node without a submitter.
	ErrReadOnly = errors.New("node is read-only")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Proof is one record of the merged ledger. Content is empty when Hidden.
type Proof struct {
	ID                 string     `json:"id"`
	Digest             string     `json:"digest"`
	Content            string     `json:"content"`
	Revealed           bool       `json:"revealed"`
	Hidden             bool       `json:"hidden,omitempty"`
	Anonymous          bool       `json:"anonymous"`
	CreatorDisplayName string     `json:"creator_display_name"`
	CreatorAddress     string     `json:"creator_address"`
	CreatedAt          time.Time  `json:"created_at"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	SourceTxID         string     `json:"source_tx_id,omitempty"`
	WitnessStatement   string     `json:"witness_statement,omitempty"`
	Milestones         []string   `json:"milestones,omitempty"`
	SealReference      string     `json:"seal_reference,omitempty"`
}

// Stats holds the aggregate counts of the merged ledger.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Fulfilled int `json:"fulfilled"`
	Voided    int `json:"voided"`
	Integrity int `json:"integrity"`
}

// VerifyResult is the outcome of Verify. Proof is nil on a non-match.
type VerifyResult struct {
	Matched bool   `json:"matched"`
	Digest  string `json:"digest"`
	Proof   *Proof `json:"proof,omitempty"`
}

// SyncResult summarises a chain sync cycle.
type SyncResult struct {
	At           time.Time     `json:"at"`
	Duration     time.Duration `json:"duration"`
	Events       int           `json:"events"`
	Creations    int           `json:"creations"`
	Updates      int           `json:"updates"`
	ChainRecords int           `json:"chain_records"`
	TotalRecords int           `json:"total_records"`
}

// ListOptions filters List. Zero values are omitted from the query.
type ListOptions struct {
	Query    string
	Status   string
	Category string
	Creator  string
	Sort     string // newest (default), oldest or digest
}

// EnshrineRequest is the payload for Enshrine.
type EnshrineRequest struct {
	Content     string     `json:"content"`
	Anonymous   bool       `json:"anonymous,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Creator     string     `json:"creator,omitempty"`
	Deadline    *time.Time `json:"-"`
	Category    string     `json:"category,omitempty"`
}

// Client talks to a proofsd node.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *proofCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithCacheTTL enables in-memory caching of Get results with the given TTL.
// Writes through this client clear the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newProofCache(ttl)
		return nil
	}
}

// New creates a Client for the node at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns the proofs matching opts.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Proof, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"q":        opts.Query,
		"status":   opts.Status,
		"category": opts.Category,
		"creator":  opts.Creator,
		"sort":     opts.Sort,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	path := "/api/v1/proofs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var wrapper struct {
		Proofs []Proof `json:"proofs"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Proofs, nil
}

// Get fetches one proof by id, digest or transaction hash.
func (c *Client) Get(ctx context.Context, ref string) (*Proof, error) {
	if c.cache != nil {
		if p, ok := c.cache.get(ref); ok {
			return p, nil
		}
	}

	var wrapper struct {
		Proof Proof `json:"proof"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(ref), nil, &wrapper); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.set(ref, &wrapper.Proof)
	}
	return &wrapper.Proof, nil
}

// Stats returns the aggregate counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.call(ctx, http.MethodGet, "/api/v1/proofs/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Verify reports whether text, byte for byte, matches an anchored proof.
func (c *Client) Verify(ctx context.Context, text string) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/verify", map[string]string{"text": text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Enshrine anchors a new promise.
func (c *Client) Enshrine(ctx context.Context, req EnshrineRequest) (*Proof, error) {
	body := struct {
		EnshrineRequest
		Deadline string `json:"deadline,omitempty"`
	}{EnshrineRequest: req}
	if req.Deadline != nil {
		body.Deadline = req.Deadline.UTC().Format(time.RFC3339)
	}

	var wrapper struct {
		Proof Proof `json:"proof"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs", body, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Proof, nil
}

// UpdateStatus marks a proof fulfilled or voided. actor may be empty to use
// the node's default sender.
func (c *Client) UpdateStatus(ctx context.Context, ref, status, actor string) (*Proof, error) {
	body := map[string]string{"status": status}
	if actor != "" {
		body["actor"] = actor
	}
	var wrapper struct {
		Proof Proof `json:"proof"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs/"+url.PathEscape(ref)+"/status", body, &wrapper); err != nil {
		return nil, err
	}
	c.invalidate()
	return &wrapper.Proof, nil
}

// ToggleReveal flips whether a proof's content is shown.
func (c *Client) ToggleReveal(ctx context.Context, ref string) (*Proof, error) {
	var wrapper struct {
		Proof Proof `json:"proof"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs/"+url.PathEscape(ref)+"/reveal", nil, &wrapper); err != nil {
		return nil, err
	}
	c.invalidate()
	return &wrapper.Proof, nil
}

// Sync asks the node to rescan the chain now.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	var wrapper struct {
		Sync SyncResult `json:"sync"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/sync", nil, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Sync, nil
}

// LastSync returns the node's most recent successful sync. ok is false if
// the node has not synced since it started.
func (c *Client) LastSync(ctx context.Context) (res *SyncResult, ok bool, err error) {
	var wrapper struct {
		Synced bool       `json:"synced"`
		Sync   SyncResult `json:"sync"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/sync", nil, &wrapper); err != nil {
		return nil, false, err
	}
	if !wrapper.Synced {
		return nil, false, nil
	}
	return &wrapper.Sync, true, nil
}

func (c *Client) invalidate() {
	if c.cache != nil {
		c.cache.clear()
	}
}

// call encodes in as the JSON request body (if non-nil), executes the
// request and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request and maps error statuses.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 300 {
		return body, nil
	}

	var e struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	case resp.StatusCode == http.StatusServiceUnavailable && strings.Contains(msg, "read-only"):
		return nil, ErrReadOnly
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// --- simple in-memory proof cache ---

type cacheEntry struct {
	proof     *Proof
	expiresAt time.Time
}

type proofCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newProofCache(ttl time.Duration) *proofCache {
	return &proofCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (pc *proofCache) get(key string) (*Proof, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	e, ok := pc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	p := *e.proof
	return &p, true
}

func (pc *proofCache) set(key string, p *Proof) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	cp := *p
	pc.entries[key] = &cacheEntry{proof: &cp, expiresAt: time.Now().Add(pc.ttl)}
}

// clear drops every entry; a proof may be cached under several references.
func (pc *proofCache) clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries = make(map[string]*cacheEntry)
}
