// Package distribution wires the lead distribution engine: intake, duplicate
// suppression, eligibility, round-robin rotation, exclusivity windows and the
// assignment lifecycle.
package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"leadmarket_backend/internal/distribution/dedupe"
	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/eligibility"
	"leadmarket_backend/internal/distribution/exclusivity"
	"leadmarket_backend/internal/distribution/intake"
	"leadmarket_backend/internal/distribution/lifecycle"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/distribution/roundrobin"
	"leadmarket_backend/internal/distribution/territory"
	"leadmarket_backend/internal/events"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
)

// Options tunes the engine.
type Options struct {
	DuplicateWindow   time.Duration
	ExclusivityWindow time.Duration
	RotationScope     string
	MaxAgencies       int
	Now               func() time.Time
}

// Service is the lead ingestion orchestrator and the entry point for agency
// and admin operations on distributed leads.
type Service struct {
	store      repository.Store
	normalizer *intake.Normalizer
	duplicates *dedupe.Detector
	eligible   *eligibility.Filter
	selector   *roundrobin.Selector
	windows    *exclusivity.Manager
	tracker    *lifecycle.Tracker
	eventBus   events.Bus
	scope      string
	now        func() time.Time
	log        *logger.Logger
}

// NewService assembles the engine over store.
func NewService(store repository.Store, normalizer *intake.Normalizer, eventBus events.Bus, opts Options, log *logger.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RotationScope == "" {
		opts.RotationScope = roundrobin.ScopeIndustry
	}
	index := territory.NewIndex(store)
	filter := eligibility.NewFilter(index, store)
	tracker := lifecycle.NewTracker(store, opts.Now, log)
	windows := exclusivity.NewManager(store, store, tracker, filter, exclusivity.Config{
		Window:      opts.ExclusivityWindow,
		MaxAgencies: opts.MaxAgencies,
		Now:         opts.Now,
	}, log)

	return &Service{
		store:      store,
		normalizer: normalizer,
		duplicates: dedupe.NewDetector(store, opts.DuplicateWindow, opts.Now, log),
		eligible:   filter,
		selector:   roundrobin.NewSelector(store),
		windows:    windows,
		tracker:    tracker,
		eventBus:   eventBus,
		scope:      opts.RotationScope,
		now:        opts.Now,
		log:        log,
	}
}

// Tracker exposes the assignment lifecycle to collaborators such as the
// notification worker.
func (s *Service) Tracker() *lifecycle.Tracker { return s.tracker }

// ProcessLead normalizes, validates, deduplicates, persists and distributes
// one portal payload. Validation and duplicate failures return an error
// before anything is written. Once the lead is persisted the call returns a
// result carrying its ID; assignment failures are reported in the result and
// leave the lead unassigned.
func (s *Service) ProcessLead(ctx context.Context, payload map[string]any, portal domain.Portal) (domain.IngestionResult, error) {
	const op = "distribution.ProcessLead"
	log := s.log.WithContext(ctx)

	lead, err := s.normalizer.Normalize(payload, portal, s.now())
	if err != nil {
		return domain.IngestionResult{}, domain.AppError(op, err)
	}

	if s.duplicates.IsDuplicate(ctx, lead.Contact()) {
		return domain.IngestionResult{}, domain.AppError(op, domain.ErrDuplicateLead)
	}

	if err := s.store.InsertLead(ctx, lead); err != nil {
		log.DatabaseError("insert lead", err)
		return domain.IngestionResult{}, domain.AppError(op, err)
	}

	result := s.distribute(ctx, lead, portal)

	log.LeadIngested(lead.ID.String(), portal.ID.String(), string(result.Outcome), len(result.AssignedAgencyIDs))
	s.eventBus.Publish(ctx, events.LeadIngested{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		PortalID:   portal.ID,
		Outcome:    string(result.Outcome),
		RawPayload: lead.RawPayload,
	})
	return result, nil
}

func (s *Service) distribute(ctx context.Context, lead domain.Lead, portal domain.Portal) domain.IngestionResult {
	result := domain.IngestionResult{LeadID: lead.ID, AssignedAgencyIDs: []uuid.UUID{}, Errors: []string{}}

	candidates, err := s.eligible.Candidates(ctx, lead.Location)
	if err != nil {
		return s.fail(ctx, lead, result, fmt.Errorf("eligibility: %w", err))
	}

	if len(candidates) == 0 {
		result.Outcome = domain.OutcomeNoEligibleAgency
		if err := s.store.UpdateLeadDisposition(ctx, lead.ID, domain.LeadStatusNew, domain.LeadUnassigned); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		s.audit(ctx, lead, nil, result.Outcome, &result)
		return result
	}

	var assignments []domain.Assignment
	var rec domain.DistributionRecord
	if lead.MobileExclusive || portal.DistributionMode == domain.ModeExclusive {
		result.Mode = domain.ModeExclusive
		rec, assignments, err = s.openExclusive(ctx, lead, candidates)
	} else {
		result.Mode = domain.ModeRoundRobin
		rec, assignments, err = s.assignNext(ctx, lead, candidates)
	}
	if err != nil {
		return s.fail(ctx, lead, result, err)
	}

	result.DistributionID = &rec.ID
	result.Outcome = domain.OutcomeDistributed
	if result.Mode == domain.ModeRoundRobin {
		result.Outcome = domain.OutcomeAssigned
	}
	for _, a := range assignments {
		agencyID := a.AgencyID
		result.AssignedAgencyIDs = append(result.AssignedAgencyIDs, agencyID)
		s.audit(ctx, lead, &agencyID, result.Outcome, &result)
		s.eventBus.Publish(ctx, events.LeadAssigned{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			AgencyID:       agencyID,
			AssignmentID:   a.ID,
			DistributionID: rec.ID,
			Exclusive:      rec.IsExclusive,
			AvailableUntil: rec.AvailableUntil,
		})
	}
	if len(result.AssignedAgencyIDs) > 0 {
		first := result.AssignedAgencyIDs[0]
		result.AssignedAgencyID = &first
	}
	return result
}

// assignNext rotates to the next eligible agency. The record, assignment and
// lead disposition commit with the cursor advance or not at all.
func (s *Service) assignNext(ctx context.Context, lead domain.Lead, candidates []eligibility.Candidate) (domain.DistributionRecord, []domain.Assignment, error) {
	pool := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		pool[i] = c.AgencyID
	}

	var rec domain.DistributionRecord
	var assignment domain.Assignment
	scope := roundrobin.ScopeKey(s.scope, lead.Industry)
	_, err := s.selector.Next(ctx, scope, pool, func(ctx context.Context, agencyID uuid.UUID) error {
		var err error
		if rec, err = s.windows.OpenWindow(ctx, lead, false, 0); err != nil {
			return err
		}
		if assignment, err = s.tracker.Create(ctx, rec, agencyID); err != nil {
			return err
		}
		return s.store.UpdateLeadDisposition(ctx, lead.ID, domain.LeadStatusAssigned, domain.LeadAssigned)
	})
	if err != nil {
		return domain.DistributionRecord{}, nil, err
	}
	return rec, []domain.Assignment{assignment}, nil
}

// openExclusive opens the lead's window and assigns the highest priority
// candidates up to the window's bound, ties kept in eligibility order.
func (s *Service) openExclusive(ctx context.Context, lead domain.Lead, candidates []eligibility.Candidate) (domain.DistributionRecord, []domain.Assignment, error) {
	ranked := append([]eligibility.Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Priority > ranked[j].Priority })
	if len(ranked) > s.windows.MaxAgencies() {
		ranked = ranked[:s.windows.MaxAgencies()]
	}

	var rec domain.DistributionRecord
	assignments := make([]domain.Assignment, 0, len(ranked))
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		if rec, err = s.windows.OpenWindow(ctx, lead, true, ranked[0].Priority); err != nil {
			return err
		}
		for _, c := range ranked {
			a, err := s.tracker.Create(ctx, rec, c.AgencyID)
			if err != nil {
				return err
			}
			assignments = append(assignments, a)
		}
		return s.store.UpdateLeadDisposition(ctx, lead.ID, domain.LeadStatusDistributed, domain.LeadDistributed)
	})
	if err != nil {
		return domain.DistributionRecord{}, nil, err
	}
	return rec, assignments, nil
}

func (s *Service) fail(ctx context.Context, lead domain.Lead, result domain.IngestionResult, cause error) domain.IngestionResult {
	s.log.WithContext(ctx).Error("lead assignment failed",
		slog.String("lead_id", lead.ID.String()),
		slog.String("error", cause.Error()))

	result.Outcome = domain.OutcomeAssignmentFailed
	result.AssignedAgencyIDs = []uuid.UUID{}
	result.AssignedAgencyID = nil
	result.DistributionID = nil
	result.Errors = append(result.Errors, cause.Error())
	if err := s.store.UpdateLeadDisposition(ctx, lead.ID, domain.LeadStatusNew, domain.LeadUnassigned); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	s.audit(ctx, lead, nil, result.Outcome, &result)
	return result
}

type leadSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	PortalID  uuid.UUID       `json:"portalId"`
	Industry  string          `json:"industry,omitempty"`
	FirstName string          `json:"firstName,omitempty"`
	LastName  string          `json:"lastName,omitempty"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Location  domain.Location `json:"location"`
	Mobile    bool            `json:"mobileExclusive"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Service) audit(ctx context.Context, lead domain.Lead, agencyID *uuid.UUID, outcome domain.AuditOutcome, result *domain.IngestionResult) {
	snapshot, _ := json.Marshal(leadSnapshot{
		ID:        lead.ID,
		PortalID:  lead.PortalID,
		Industry:  lead.Industry,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Email:     lead.Email,
		Phone:     lead.Phone,
		Location:  lead.Location,
		Mobile:    lead.MobileExclusive,
		CreatedAt: lead.CreatedAt,
	})
	err := s.store.AppendAudit(ctx, domain.AuditEntry{
		LeadID:       lead.ID,
		LeadSnapshot: snapshot,
		AgencyID:     agencyID,
		Outcome:      outcome,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("append audit", err)
		result.Errors = append(result.Errors, fmt.Sprintf("audit: %v", err))
	}
}

// =====================================
// Agency operations
// =====================================

// RecordView registers an agency opening a distributed lead.
func (s *Service) RecordView(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error) {
	a, err := s.windows.RecordView(ctx, distributionID, agencyID)
	if err != nil {
		return domain.Assignment{}, domain.AppError("distribution.RecordView", err)
	}
	return a, nil
}

// Resolve applies an agency's purchase or dismissal.
func (s *Service) Resolve(ctx context.Context, distributionID, agencyID uuid.UUID, action domain.ResponseAction) (domain.Assignment, error) {
	a, err := s.windows.Resolve(ctx, distributionID, agencyID, action)
	if err != nil {
		return a, domain.AppError("distribution.Resolve", err)
	}
	s.eventBus.Publish(ctx, events.AssignmentResolved{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		AgencyID:     a.AgencyID,
		Action:       string(action),
	})
	return a, nil
}

// Assignment returns one of the agency's assignments.
func (s *Service) Assignment(ctx context.Context, agencyID, assignmentID uuid.UUID) (domain.Assignment, error) {
	a, err := s.tracker.Get(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, domain.AppError("distribution.Assignment", err)
	}
	if a.AgencyID != agencyID {
		// other agencies' assignments are indistinguishable from missing ones
		return domain.Assignment{}, domain.AppError("distribution.Assignment", domain.ErrNotFound)
	}
	return a, nil
}

// Inbox lists an agency's assignments.
func (s *Service) Inbox(ctx context.Context, params repository.AssignmentListParams) ([]domain.Assignment, error) {
	items, err := s.tracker.ListForAgency(ctx, params)
	if err != nil {
		return nil, domain.AppError("distribution.Inbox", err)
	}
	return items, nil
}

// =====================================
// Admin operations
// =====================================

// SweepExpired proactively expires overdue assignments.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	n, err := s.windows.ExpireDue(ctx, limit)
	if n > 0 {
		s.eventBus.Publish(ctx, events.AssignmentsExpired{BaseEvent: events.NewBaseEvent(), Count: n})
	}
	if err != nil {
		return n, domain.AppError("distribution.SweepExpired", err)
	}
	return n, nil
}

// AddTerritory grants an agency a territory.
func (s *Service) AddTerritory(ctx context.Context, agencyID uuid.UUID, typ domain.TerritoryType, value string, priority int) (domain.Territory, error) {
	if _, err := s.store.GetAgency(ctx, agencyID); err != nil {
		return domain.Territory{}, domain.AppError("distribution.AddTerritory", err)
	}
	t, err := territory.AddTerritory(ctx, s.store, agencyID, typ, value, priority, s.now())
	if err != nil {
		return domain.Territory{}, domain.AppError("distribution.AddTerritory", err)
	}
	return t, nil
}

// DeactivateTerritory retires a territory.
func (s *Service) DeactivateTerritory(ctx context.Context, id uuid.UUID) error {
	if err := territory.DeactivateTerritory(ctx, s.store, id, s.now()); err != nil {
		return domain.AppError("distribution.DeactivateTerritory", err)
	}
	return nil
}

// Territories lists an agency's active territories.
func (s *Service) Territories(ctx context.Context, agencyID uuid.UUID) ([]domain.Territory, error) {
	ts, err := territory.ActiveTerritories(ctx, s.store, agencyID)
	if err != nil {
		return nil, domain.AppError("distribution.Territories", err)
	}
	return ts, nil
}

// Distribution returns a record with its assignments.
func (s *Service) Distribution(ctx context.Context, id uuid.UUID) (domain.DistributionRecord, []domain.Assignment, error) {
	rec, items, err := s.windows.Get(ctx, id)
	if err != nil {
		return rec, nil, domain.AppError("distribution.Distribution", err)
	}
	return rec, items, nil
}
