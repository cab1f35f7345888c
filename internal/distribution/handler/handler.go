// Package handler exposes the distribution engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/platform/httpkit"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// Engine is the distribution service surface the handlers call.
type Engine interface {
	ProcessLead(ctx context.Context, payload map[string]any, portal domain.Portal) (domain.IngestionResult, error)
	RecordView(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error)
	Resolve(ctx context.Context, distributionID, agencyID uuid.UUID, action domain.ResponseAction) (domain.Assignment, error)
	Assignment(ctx context.Context, agencyID, assignmentID uuid.UUID) (domain.Assignment, error)
	Inbox(ctx context.Context, params repository.AssignmentListParams) ([]domain.Assignment, error)
	SweepExpired(ctx context.Context, limit int) (int, error)
	AddTerritory(ctx context.Context, agencyID uuid.UUID, typ domain.TerritoryType, value string, priority int) (domain.Territory, error)
	DeactivateTerritory(ctx context.Context, id uuid.UUID) error
	Territories(ctx context.Context, agencyID uuid.UUID) ([]domain.Territory, error)
	Distribution(ctx context.Context, id uuid.UUID) (domain.DistributionRecord, []domain.Assignment, error)
}

// Handler handles distribution HTTP requests.
type Handler struct {
	engine  Engine
	portals repository.PortalStore
	val     *validator.Validator
	log     *logger.Logger
}

// New creates a new distribution handler.
func New(engine Engine, portals repository.PortalStore, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{engine: engine, portals: portals, val: val, log: log}
}

func (h *Handler) bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.FieldErrors(err))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
