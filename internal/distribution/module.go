package distribution

import (
	"fmt"

	"leadmarket_backend/internal/distribution/handler"
	"leadmarket_backend/internal/distribution/intake"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/events"
	apphttp "leadmarket_backend/internal/http"
	"leadmarket_backend/platform/config"
	"leadmarket_backend/platform/httpkit"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/validator"
)

// Module is the distribution bounded context module implementing http.Module.
type Module struct {
	service    *Service
	handler    *handler.Handler
	store      repository.Store
	intakeRate int
	log        *logger.Logger
}

// NewModule creates the distribution module over store.
func NewModule(store repository.Store, cfg config.DistributionConfig, eventBus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	aliases, err := intake.LoadAliases(cfg.GetIntakeAliasesFile())
	if err != nil {
		return nil, fmt.Errorf("load intake aliases: %w", err)
	}

	service := NewService(store, intake.NewNormalizer(aliases, val), eventBus, Options{
		DuplicateWindow:   cfg.GetDuplicateWindow(),
		ExclusivityWindow: cfg.GetExclusivityWindow(),
		RotationScope:     cfg.GetRotationScope(),
		MaxAgencies:       cfg.GetExclusiveMaxAgencies(),
	}, log)

	return &Module{
		service:    service,
		handler:    handler.New(service, store, val, log),
		store:      store,
		intakeRate: cfg.GetIntakeRatePerMinute(),
		log:        log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "distribution"
}

// Service exposes the engine to background workers.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts distribution routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Portal intake (API key auth, no JWT)
	intakeGroup := ctx.V1.Group("/intake")
	intakeGroup.Use(handler.PortalAPIKeyAuth(m.store, m.log))
	intakeGroup.Use(httpkit.PerMinute(m.intakeRate, m.log).RateLimit(handler.ByPortal))
	intakeGroup.POST("/leads", m.handler.HandleIngestLead)

	// Agency inbox (JWT scoped to an agency)
	agency := ctx.Protected.Group("/agency")
	agency.GET("/assignments", m.handler.HandleListAssignments)
	agency.GET("/assignments/:id", m.handler.HandleGetAssignment)
	agency.POST("/distributions/:id/view", m.handler.HandleRecordView)
	agency.POST("/distributions/:id/resolve", m.handler.HandleResolve)

	// Admin
	ctx.Admin.POST("/territories", m.handler.HandleCreateTerritory)
	ctx.Admin.DELETE("/territories/:id", m.handler.HandleDeactivateTerritory)
	ctx.Admin.GET("/agencies/:id/territories", m.handler.HandleListTerritories)
	ctx.Admin.POST("/distributions/sweep", m.handler.HandleSweep)
	ctx.Admin.GET("/distributions/:id", m.handler.HandleGetDistribution)
	ctx.Admin.POST("/portals", m.handler.HandleCreatePortal)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
