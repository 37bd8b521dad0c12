package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igasovic/PKM-sub000/internal/http/response"
)

type TestModeService interface {
	GetState(ctx context.Context) (bool, error)
	SetState(ctx context.Context, next bool) (bool, error)
	Toggle(ctx context.Context) (bool, error)
	SchemaFor(testMode bool) string
}

type TestModeHandler struct {
	svc TestModeService
}

func NewTestModeHandler(svc TestModeService) *TestModeHandler {
	return &TestModeHandler{svc: svc}
}

func (h *TestModeHandler) respond(c *gin.Context, on bool) {
	response.RespondOK(c, gin.H{"is_test_mode": on, "active_schema": h.svc.SchemaFor(on)})
}

// GET /api/config/test-mode
func (h *TestModeHandler) Get(c *gin.Context) {
	on, err := h.svc.GetState(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.respond(c, on)
}

type setTestModeRequest struct {
	IsTestMode *bool `json:"is_test_mode"`
}

// PUT /api/config/test-mode
func (h *TestModeHandler) Set(c *gin.Context) {
	var req setTestModeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsTestMode == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errMissingField("is_test_mode", err))
		return
	}
	on, err := h.svc.SetState(c.Request.Context(), *req.IsTestMode)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.respond(c, on)
}

// POST /api/config/test-mode/toggle
func (h *TestModeHandler) Toggle(c *gin.Context) {
	on, err := h.svc.Toggle(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.respond(c, on)
}
