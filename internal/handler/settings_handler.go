package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/service"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
}

type updatePlanRequest struct {
	Steps []model.StepDefinition `json:"steps"`
}

func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	settings, apiErr := h.settingsService.GetSettings(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req model.TimerConfig
	if !bindJSON(c, &req) {
		return
	}

	settings, apiErr := h.settingsService.UpdateSettings(c.Request.Context(), userID, req)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *SettingsHandler) GetPlan(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	plan, apiErr := h.settingsService.GetPlan(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (h *SettingsHandler) UpdatePlan(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req updatePlanRequest
	if !bindJSON(c, &req) {
		return
	}

	plan, apiErr := h.settingsService.UpdatePlan(c.Request.Context(), userID, req.Steps)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
