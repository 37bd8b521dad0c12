package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/http/response"
	"github.com/igasovic/PKM-sub000/internal/modules/ingest"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

type CaptureService interface {
	Capture(ctx context.Context, req ingest.CaptureRequest) (*ingest.Result, error)
	Insert(ctx context.Context, p *capture.EntryPayload) (*ingest.Result, error)
	Update(ctx context.Context, p *capture.EntryPayload) (*capture.Entry, error)
}

type CaptureHandler struct {
	svc CaptureService
}

func NewCaptureHandler(svc CaptureService) *CaptureHandler {
	return &CaptureHandler{svc: svc}
}

// POST /api/captures
func (h *CaptureHandler) Capture(c *gin.Context) {
	var req ingest.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Capture(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/entries
func (h *CaptureHandler) InsertEntry(c *gin.Context) {
	var p capture.EntryPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Insert(c.Request.Context(), &p)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"action": res.Action, "schema": res.Schema, "row": res.Row})
}

// PATCH /api/entries/:entry_id
func (h *CaptureHandler) UpdateEntry(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("entry_id"), 10, 64)
	if err != nil || entryID <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_entry_id", fmt.Errorf("%w: entry_id must be a positive integer", pkgerrors.ErrInvalidArgument))
		return
	}
	var p capture.EntryPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if p.EntryID != nil && *p.EntryID != entryID {
		response.RespondError(c, http.StatusBadRequest, "entry_id_mismatch", fmt.Errorf("%w: body entry_id differs from path", pkgerrors.ErrInvalidArgument))
		return
	}
	p.EntryID = &entryID
	row, err := h.svc.Update(c.Request.Context(), &p)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"row": row})
}
