// Package exclusivity manages the time-bounded window through which a lead is
// offered to agencies, and the views and responses recorded against it.
package exclusivity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/eligibility"
	"leadmarket_backend/internal/distribution/lifecycle"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
)

// DefaultWindow is how long a distribution record stays open.
const DefaultWindow = 24 * time.Hour

// Eligibility is the filter surface used to admit late viewers.
type Eligibility interface {
	Candidates(ctx context.Context, loc domain.Location) ([]eligibility.Candidate, error)
}

// Config tunes a Manager.
type Config struct {
	Window      time.Duration
	MaxAgencies int
	Now         func() time.Time
}

// Manager opens distribution windows and records activity against them.
type Manager struct {
	store       repository.DistributionStore
	assignments repository.AssignmentStore
	tracker     *lifecycle.Tracker
	eligible    Eligibility
	window      time.Duration
	maxAgencies int
	now         func() time.Time
	log         *logger.Logger
}

// NewManager creates a Manager.
func NewManager(store repository.DistributionStore, assignments repository.AssignmentStore, tracker *lifecycle.Tracker, eligible Eligibility, cfg Config, log *logger.Logger) *Manager {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAgencies <= 0 {
		cfg.MaxAgencies = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:       store,
		assignments: assignments,
		tracker:     tracker,
		eligible:    eligible,
		window:      cfg.Window,
		maxAgencies: cfg.MaxAgencies,
		now:         cfg.Now,
		log:         log,
	}
}

// MaxAgencies is the bound on agencies sharing one exclusive window.
func (m *Manager) MaxAgencies() int { return m.maxAgencies }

// OpenWindow creates the lead's single distribution record, open until
// now + window. A second call for the same lead fails with
// ErrDuplicateDistribution.
func (m *Manager) OpenWindow(ctx context.Context, lead domain.Lead, exclusive bool, priority int) (domain.DistributionRecord, error) {
	now := m.now()
	rec := domain.DistributionRecord{
		ID:             uuid.New(),
		LeadID:         lead.ID,
		Location:       lead.Location,
		IsExclusive:    exclusive,
		AvailableUntil: now.Add(m.window),
		PriorityScore:  priority,
		CreatedAt:      now,
	}
	if err := m.store.InsertDistribution(ctx, rec); err != nil {
		return domain.DistributionRecord{}, err
	}
	return rec, nil
}

// Get returns a record with its assignments, expiring any whose window passed.
func (m *Manager) Get(ctx context.Context, distributionID uuid.UUID) (domain.DistributionRecord, []domain.Assignment, error) {
	rec, err := m.store.GetDistribution(ctx, distributionID)
	if err != nil {
		return domain.DistributionRecord{}, nil, err
	}
	items, err := m.assignments.ListAssignmentsByDistribution(ctx, rec.ID)
	if err != nil {
		return domain.DistributionRecord{}, nil, err
	}
	for i, a := range items {
		if items[i], err = m.tracker.Observe(ctx, a); err != nil {
			return domain.DistributionRecord{}, nil, err
		}
	}
	return rec, items, nil
}

// RecordView registers agencyID opening the lead. The first view moves the
// assignment to viewed; later views only count. An eligible agency without an
// assignment on an exclusive window gets one while the window has room.
// Views after the window closed fail with ErrWindowClosed and are not counted.
func (m *Manager) RecordView(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error) {
	rec, err := m.store.GetDistribution(ctx, distributionID)
	if err != nil {
		return domain.Assignment{}, err
	}

	a, err := m.tracker.Find(ctx, rec.ID, agencyID)
	missing := errors.Is(err, domain.ErrNotFound)
	if err != nil && !missing {
		return domain.Assignment{}, err
	}

	if !rec.IsOpen(m.now()) {
		return a, domain.ErrWindowClosed
	}

	if missing {
		if a, err = m.admitLateViewer(ctx, rec, agencyID); err != nil {
			return domain.Assignment{}, err
		}
	}

	if _, err := m.store.IncrementViewCount(ctx, rec.ID, m.now()); err != nil {
		return a, err
	}
	return m.tracker.MarkViewed(ctx, a)
}

func (m *Manager) admitLateViewer(ctx context.Context, rec domain.DistributionRecord, agencyID uuid.UUID) (domain.Assignment, error) {
	if !rec.IsExclusive {
		return domain.Assignment{}, domain.ErrNotEligible
	}

	existing, err := m.assignments.ListAssignmentsByDistribution(ctx, rec.ID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(existing) >= m.maxAgencies {
		return domain.Assignment{}, fmt.Errorf("%w: window is full", domain.ErrNotEligible)
	}

	candidates, err := m.eligible.Candidates(ctx, rec.Location)
	if err != nil {
		return domain.Assignment{}, err
	}
	allowed := false
	for _, c := range candidates {
		if c.AgencyID == agencyID {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Assignment{}, domain.ErrNotEligible
	}

	a, err := m.tracker.Create(ctx, rec, agencyID)
	if errors.Is(err, domain.ErrDuplicateAssignment) {
		// a concurrent first view created it
		return m.tracker.Find(ctx, rec.ID, agencyID)
	}
	return a, err
}

// Resolve applies an agency's purchase or dismissal. A terminal assignment,
// including one that expired, fails with ErrAlreadyResolved.
func (m *Manager) Resolve(ctx context.Context, distributionID, agencyID uuid.UUID, action domain.ResponseAction) (domain.Assignment, error) {
	if !action.AgencyAction() {
		return domain.Assignment{}, fmt.Errorf("%w: action must be purchased or dismissed", domain.ErrValidation)
	}
	a, err := m.tracker.Find(ctx, distributionID, agencyID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return m.tracker.Respond(ctx, a, action)
}

// ExpireDue proactively expires up to limit overdue assignments.
func (m *Manager) ExpireDue(ctx context.Context, limit int) (int, error) {
	return m.tracker.SweepExpired(ctx, limit)
}
