package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type markUnitRequest struct {
	BaseVersion int    `json:"baseVersion"`
	StepID      string `json:"stepId"`
	Unit        *int   `json:"unit"`
	Completed   *bool  `json:"completed"`
}

type sessionAction func(ctx context.Context, userID string, baseVersion int) (*service.StateView, *apperrors.APIError)

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) GetState(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	state, apiErr := h.sessionService.GetState(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeState(c, state)
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.run(c, h.sessionService.Start)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.run(c, h.sessionService.Pause)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	h.run(c, h.sessionService.Reset)
}

func (h *SessionHandler) Advance(c *gin.Context) {
	h.run(c, h.sessionService.Advance)
}

func (h *SessionHandler) Abandon(c *gin.Context) {
	h.run(c, h.sessionService.Abandon)
}

func (h *SessionHandler) MarkUnit(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req markUnitRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BaseVersion <= 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion is required"))
		return
	}
	if req.StepID == "" || req.Unit == nil {
		writeError(c, apperrors.BadRequest("invalid_unit", "stepId and unit are required"))
		return
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	state, apiErr := h.sessionService.MarkUnit(c.Request.Context(), userID, service.MarkUnitInput{
		BaseVersion: req.BaseVersion,
		StepID:      req.StepID,
		Unit:        *req.Unit,
		Completed:   completed,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeState(c, state)
}

func (h *SessionHandler) Finish(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	baseVersion, ok := bindBaseVersion(c)
	if !ok {
		return
	}

	result, apiErr := h.sessionService.Finish(c.Request.Context(), userID, baseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) run(c *gin.Context, action sessionAction) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	baseVersion, ok := bindBaseVersion(c)
	if !ok {
		return
	}

	state, apiErr := action(c.Request.Context(), userID, baseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeState(c, state)
}

func bindBaseVersion(c *gin.Context) (int, bool) {
	var req versionRequest
	if !bindJSON(c, &req) {
		return 0, false
	}
	if req.BaseVersion <= 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion is required"))
		return 0, false
	}
	return req.BaseVersion, true
}
