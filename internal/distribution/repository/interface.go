package repository

import (
	"context"
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadWriter persists leads and their disposition.
type LeadWriter interface {
	InsertLead(ctx context.Context, lead domain.Lead) error
	UpdateLeadDisposition(ctx context.Context, id uuid.UUID, status domain.LeadStatus, state domain.LeadAssignmentState) error
}

// LeadReader reads leads back.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// DuplicateFinder answers the two trailing-window duplicate lookups.
type DuplicateFinder interface {
	HasRecentLeadWithEmail(ctx context.Context, email string, since time.Time) (bool, error)
	HasRecentLeadWithPhoneDigits(ctx context.Context, digits string, since time.Time) (bool, error)
}

// TerritoryReader returns active territories matching a normalized location.
type TerritoryReader interface {
	MatchActiveTerritories(ctx context.Context, loc domain.Location) ([]domain.Territory, error)
}

// TerritoryStore manages territories. Uniqueness of active territories per
// (agency, type, value) is enforced by the store and reported as ErrTerritoryExists.
type TerritoryStore interface {
	TerritoryReader
	InsertTerritory(ctx context.Context, t domain.Territory) error
	DeactivateTerritory(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActiveTerritories(ctx context.Context, agencyID uuid.UUID) ([]domain.Territory, error)
}

// AgencyReader reads agencies owned by the billing side.
type AgencyReader interface {
	GetAgency(ctx context.Context, id uuid.UUID) (domain.Agency, error)
	// AgencyUsage returns the requested agencies with units consumed since
	// their period start, ordered by (created_at, id).
	AgencyUsage(ctx context.Context, ids []uuid.UUID) ([]domain.AgencyUsage, error)
}

// CursorStore persists one rotation cursor per scope.
type CursorStore interface {
	// Rotate serializes access to scope's cursor. pick receives the stored
	// position and returns the next one. Writes pick performs through ctx
	// commit together with the new position; if pick fails nothing is kept.
	Rotate(ctx context.Context, scope string, pick func(ctx context.Context, position int64) (int64, error)) error
	CursorPosition(ctx context.Context, scope string) (int64, error)
}

// DistributionStore persists distribution records. InsertDistribution reports
// a second record for the same lead as ErrDuplicateDistribution.
type DistributionStore interface {
	InsertDistribution(ctx context.Context, rec domain.DistributionRecord) error
	GetDistribution(ctx context.Context, id uuid.UUID) (domain.DistributionRecord, error)
	GetDistributionByLead(ctx context.Context, leadID uuid.UUID) (domain.DistributionRecord, error)
	// IncrementViewCount counts a view while the window is open at now and
	// returns ErrWindowClosed otherwise.
	IncrementViewCount(ctx context.Context, id uuid.UUID, now time.Time) (int, error)
}

// AssignmentListParams filters an agency inbox. State matches the effective
// state at Now: an open assignment whose window ended counts as expired.
type AssignmentListParams struct {
	AgencyID uuid.UUID
	State    *domain.AssignmentState
	Now      time.Time
	Limit    int
	Offset   int
}

// AssignmentStore persists assignments. Returned assignments carry the
// AvailableUntil of their distribution record.
type AssignmentStore interface {
	InsertAssignment(ctx context.Context, a domain.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	FindAssignment(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error)
	ListAssignmentsByDistribution(ctx context.Context, distributionID uuid.UUID) ([]domain.Assignment, error)
	ListAgencyAssignments(ctx context.Context, params AssignmentListParams) ([]domain.Assignment, error)
	ListDueAssignments(ctx context.Context, now time.Time, limit int) ([]domain.Assignment, error)
	// CompareAndSetAssignment writes next only if the stored state is still expected.
	CompareAndSetAssignment(ctx context.Context, next domain.Assignment, expected domain.AssignmentState) (bool, error)
	// StampNotified sets notified_at once; later calls report false.
	StampNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// AuditWriter appends to the distribution audit log.
type AuditWriter interface {
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}

// PortalStore authenticates and registers intake portals.
type PortalStore interface {
	GetPortalByKeyHash(ctx context.Context, keyHash string) (domain.Portal, error)
	CreatePortal(ctx context.Context, p domain.Portal, keyHash, keyPrefix string) error
}

// Transactor runs fn atomically. Store calls made with the ctx handed to fn
// join the transaction; nested calls reuse it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the distribution module persists.
type Store interface {
	Transactor
	LeadWriter
	LeadReader
	DuplicateFinder
	TerritoryStore
	AgencyReader
	CursorStore
	DistributionStore
	AssignmentStore
	AuditWriter
	PortalStore
}
