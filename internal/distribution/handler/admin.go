package handler

import (
	"net/http"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/transport"
	"leadmarket_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultSweepLimit = 500

// HandleCreateTerritory grants an agency a territory.
// POST /api/v1/admin/territories
func (h *Handler) HandleCreateTerritory(c *gin.Context) {
	var req transport.CreateTerritoryRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	t, err := h.engine.AddTerritory(c.Request.Context(), req.AgencyID, domain.TerritoryType(req.Type), req.Value, req.Priority)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, transport.ToTerritoryResponse(t))
}

// HandleDeactivateTerritory retires a territory.
// DELETE /api/v1/admin/territories/:id
func (h *Handler) HandleDeactivateTerritory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.engine.DeactivateTerritory(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListTerritories lists an agency's active territories.
// GET /api/v1/admin/agencies/:id/territories
func (h *Handler) HandleListTerritories(c *gin.Context) {
	agencyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ts, err := h.engine.Territories(c.Request.Context(), agencyID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.TerritoryResponse, len(ts))
	for i, t := range ts {
		out[i] = transport.ToTerritoryResponse(t)
	}
	httpkit.OK(c, out)
}

// HandleGetDistribution returns a distribution record with its assignments.
// GET /api/v1/admin/distributions/:id
func (h *Handler) HandleGetDistribution(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	rec, items, err := h.engine.Distribution(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToDistributionResponse(rec, items))
}

// HandleSweep expires overdue assignments now.
// POST /api/v1/admin/distributions/sweep
func (h *Handler) HandleSweep(c *gin.Context) {
	var req transport.SweepRequest
	if c.Request.ContentLength > 0 && !h.bindAndValidate(c, &req) {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultSweepLimit
	}

	n, err := h.engine.SweepExpired(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SweepResponse{Expired: n})
}

// HandleCreatePortal registers an intake portal and returns its key once.
// POST /api/v1/admin/portals
func (h *Handler) HandleCreatePortal(c *gin.Context) {
	var req transport.CreatePortalRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	portal := domain.Portal{
		ID:               uuid.New(),
		Name:             req.Name,
		Industry:         req.Industry,
		DistributionMode: domain.DistributionMode(req.DistributionMode),
		Active:           true,
	}
	if err := h.portals.CreatePortal(c.Request.Context(), portal, hash, prefix); httpkit.HandleError(c, domain.AppError("distribution.CreatePortal", err)) {
		return
	}

	c.JSON(http.StatusCreated, transport.CreatePortalResponse{
		PortalResponse: transport.PortalResponse{
			ID:               portal.ID,
			Name:             portal.Name,
			Industry:         portal.Industry,
			DistributionMode: string(portal.DistributionMode),
			KeyPrefix:        prefix,
		},
		Key: plaintext,
	})
}
