package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	t1 "github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/http/response"
	"github.com/igasovic/PKM-sub000/internal/jobs/worker"
	"github.com/igasovic/PKM-sub000/internal/modules/tier1"
)

type Tier1Service interface {
	Enrich(ctx context.Context, item tier1.Item) (*tier1.EnrichResponse, error)
	EnqueueBatch(ctx context.Context, items []tier1.BatchItemInput, opts tier1.ScheduleOptions) (*tier1.ScheduleResult, error)
	ListBatchStatuses(ctx context.Context, opts tier1.StatusOptions) (*tier1.StatusList, error)
	GetBatchStatus(ctx context.Context, batchID, schema string) (*t1.JobStatus, error)
	Collect(ctx context.Context, batchID string) (*tier1.CollectResult, error)
}

type Sweeper interface {
	RunOnce(ctx context.Context) worker.SweepReport
}

var errTier1Disabled = errors.New("tier1 enrichment is not configured")

type Tier1Handler struct {
	svc     Tier1Service
	sweeper Sweeper
}

// NewTier1Handler accepts a nil svc; every route then answers 503.
func NewTier1Handler(svc Tier1Service, sweeper Sweeper) *Tier1Handler {
	return &Tier1Handler{svc: svc, sweeper: sweeper}
}

func (h *Tier1Handler) enabled(c *gin.Context) bool {
	if h.svc == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "tier1_disabled", errTier1Disabled)
		return false
	}
	return true
}

// POST /api/tier1/enrich
func (h *Tier1Handler) Enrich(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var item tier1.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Enrich(c.Request.Context(), item)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

type enqueueRequest struct {
	Items    []tier1.BatchItemInput `json:"items"`
	Model    string                 `json:"model,omitempty"`
	Metadata map[string]any         `json:"metadata,omitempty"`
}

// POST /api/tier1/batches
func (h *Tier1Handler) EnqueueBatch(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.EnqueueBatch(c.Request.Context(), req.Items, tier1.ScheduleOptions{Model: req.Model, Metadata: req.Metadata})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/tier1/batches?schema=&limit=&include_terminal=
func (h *Tier1Handler) ListBatches(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var opts tier1.StatusOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", err)
		return
	}
	res, err := h.svc.ListBatchStatuses(c.Request.Context(), opts)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/tier1/batches/:batch_id?schema=
func (h *Tier1Handler) GetBatch(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	job, err := h.svc.GetBatchStatus(c.Request.Context(), c.Param("batch_id"), c.Query("schema"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "batch_not_found", nil)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/tier1/batches/:batch_id/collect
func (h *Tier1Handler) CollectBatch(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	res, err := h.svc.Collect(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/tier1/sweep
func (h *Tier1Handler) Sweep(c *gin.Context) {
	if h.sweeper == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "worker_disabled", nil)
		return
	}
	report := h.sweeper.RunOnce(c.Request.Context())
	if report.SkippedBusy {
		c.JSON(http.StatusConflict, report)
		return
	}
	response.RespondOK(c, report)
}
