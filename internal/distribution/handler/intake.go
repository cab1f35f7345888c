package handler

import (
	"net/http"

	"leadmarket_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const maxIntakeBodyBytes = 1 << 20

// HandleIngestLead runs one portal payload through the engine.
// POST /api/v1/intake/leads
// Authenticated via X-Portal-API-Key header (set by middleware).
func (h *Handler) HandleIngestLead(c *gin.Context) {
	portal, ok := PortalFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no portal context", nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIntakeBodyBytes)
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}

	result, err := h.engine.ProcessLead(c.Request.Context(), payload, portal)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, result)
}
