package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/BaseProofs/internal/promise"
	"github.com/jmerrifield20/BaseProofs/internal/proofs"
	"github.com/jmerrifield20/BaseProofs/internal/verifier"
)

// proofService is the business interface used by ProofHandler.
// *proofs.Service satisfies this interface.
type proofService interface {
	List(f proofs.Filter) []promise.Record
	Stats() proofs.Stats
	Get(ref string) (*promise.Record, error)
	Verify(candidate string) verifier.Result
	Enshrine(ctx context.Context, req proofs.EnshrineRequest) (*promise.Record, error)
	UpdateStatus(ctx context.Context, ref string, status promise.Status, actor string) (*promise.Record, error)
	ToggleReveal(ctx context.Context, ref string) (*promise.Record, error)
	Sync(ctx context.Context) (proofs.SyncResult, error)
	LastSync() (proofs.SyncResult, bool)
}

// ProofHandler serves the proof ledger API.
type ProofHandler struct {
	svc         proofService
	syncTimeout time.Duration
	logger      *zap.Logger
}

// NewProofHandler creates a new ProofHandler. syncTimeout bounds a manual
// sync triggered through the API.
func NewProofHandler(svc proofService, syncTimeout time.Duration, logger *zap.Logger) *ProofHandler {
	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}
	return &ProofHandler{svc: svc, syncTimeout: syncTimeout, logger: logger}
}

// Register registers all proof routes on the given router group.
func (h *ProofHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/proofs")
	{
		p.GET("", h.ListProofs)
		p.POST("", h.EnshrineProof)
		p.GET("/stats", h.GetStats)
		p.GET("/:ref", h.GetProof)
		p.POST("/:ref/status", h.UpdateStatus)
		p.POST("/:ref/reveal", h.ToggleReveal)
	}

	rg.POST("/verify", h.Verify)
	rg.POST("/sync", h.TriggerSync)
	rg.GET("/sync", h.GetSync)
}

// proofView is the API shape of a record. Content is withheld while the
// record is hidden.
type proofView struct {
	promise.Record
	Hidden bool `json:"hidden,omitempty"`
}

func view(r promise.Record) proofView {
	if !r.Revealed {
		r.Content = ""
		return proofView{Record: r, Hidden: true}
	}
	return proofView{Record: r}
}

func views(records []promise.Record) []proofView {
	out := make([]proofView, len(records))
	for i, r := range records {
		out[i] = view(r)
	}
	return out
}

// ListProofs handles GET /proofs.
func (h *ProofHandler) ListProofs(c *gin.Context) {
	f := proofs.Filter{
		Query:   c.Query("q"),
		Creator: c.Query("creator"),
		Sort:    c.DefaultQuery("sort", proofs.SortNewest),
	}
	if s := c.Query("status"); s != "" {
		status := promise.Status(strings.ToLower(s))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		f.Status = status
	}
	if cat := c.Query("category"); cat != "" {
		f.Category = promise.ParseCategory(cat)
	}
	switch f.Sort {
	case proofs.SortNewest, proofs.SortOldest, proofs.SortDigest:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be newest, oldest or digest"})
		return
	}

	records := h.svc.List(f)
	c.JSON(http.StatusOK, gin.H{"proofs": views(records), "count": len(records)})
}

// GetStats handles GET /proofs/stats.
func (h *ProofHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats())
}

// GetProof handles GET /proofs/:ref, where ref is an id, digest or
// transaction hash.
func (h *ProofHandler) GetProof(c *gin.Context) {
	rec, err := h.svc.Get(c.Param("ref"))
	if err != nil {
		h.writeError(c, err, "failed to get proof")
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": view(*rec)})
}

type enshrineRequest struct {
	Content     string `json:"content" binding:"required"`
	Anonymous   bool   `json:"anonymous"`
	DisplayName string `json:"display_name"`
	Creator     string `json:"creator"`
	Deadline    string `json:"deadline"`
	Category    string `json:"category"`
}

// parseDeadline accepts RFC 3339 timestamps or plain dates.
func parseDeadline(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("deadline must be RFC 3339 or YYYY-MM-DD")
}

// EnshrineProof handles POST /proofs.
func (h *ProofHandler) EnshrineProof(c *gin.Context) {
	var req enshrineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.Enshrine(c.Request.Context(), proofs.EnshrineRequest{
		Content:     req.Content,
		Anonymous:   req.Anonymous,
		DisplayName: req.DisplayName,
		Creator:     req.Creator,
		Deadline:    deadline,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(c, err, "failed to enshrine proof")
		return
	}
	RecordEnshrined()
	c.JSON(http.StatusCreated, gin.H{"proof": view(*rec)})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
}

// UpdateStatus handles POST /proofs/:ref/status.
func (h *ProofHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := promise.Status(strings.ToLower(req.Status))

	rec, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("ref"), status, req.Actor)
	if err != nil {
		h.writeError(c, err, "failed to update proof status")
		return
	}
	RecordStatusChange(string(status))
	c.JSON(http.StatusOK, gin.H{"proof": view(*rec)})
}

// ToggleReveal handles POST /proofs/:ref/reveal.
func (h *ProofHandler) ToggleReveal(c *gin.Context) {
	rec, err := h.svc.ToggleReveal(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.writeError(c, err, "failed to toggle reveal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": view(*rec)})
}

type verifyRequest struct {
	Text *string `json:"text" binding:"required"`
}

// Verify handles POST /verify. A non-match is a normal 200 response.
func (h *ProofHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.svc.Verify(*req.Text)
	RecordVerification(res.Matched)

	resp := gin.H{"matched": res.Matched, "digest": res.Digest}
	if res.Record != nil {
		resp["proof"] = view(*res.Record)
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerSync handles POST /sync.
func (h *ProofHandler) TriggerSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncTimeout)
	defer cancel()

	res, err := h.svc.Sync(ctx)
	if err != nil {
		h.writeError(c, err, "sync failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync": res})
}

// GetSync handles GET /sync.
func (h *ProofHandler) GetSync(c *gin.Context) {
	res, ok := h.svc.LastSync()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"synced": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": true, "sync": res})
}

// writeError maps service errors onto HTTP status codes.
func (h *ProofHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, proofs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
	case errors.Is(err, proofs.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, proofs.ErrSubmitterUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "this node is read-only"})
	case errors.Is(err, proofs.ErrNoFreshData):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no fresh chain data available"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
