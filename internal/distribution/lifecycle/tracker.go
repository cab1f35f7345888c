// Package lifecycle persists assignment state transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
)

// maxCASAttempts bounds retries when a concurrent writer moved the row first.
const maxCASAttempts = 3

// Tracker owns the persisted assignment state machine. Every read path
// expires assignments whose window has passed before returning them.
type Tracker struct {
	store repository.AssignmentStore
	now   func() time.Time
	log   *logger.Logger
}

// NewTracker creates a tracker.
func NewTracker(store repository.AssignmentStore, now func() time.Time, log *logger.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, now: now, log: log}
}

// Create inserts an assignment in its initial state.
func (t *Tracker) Create(ctx context.Context, rec domain.DistributionRecord, agencyID uuid.UUID) (domain.Assignment, error) {
	a := domain.NewAssignment(rec.ID, rec.LeadID, agencyID, rec.AvailableUntil, t.now())
	if err := t.store.InsertAssignment(ctx, a); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// Get loads an assignment, observing expiry.
func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	a, err := t.store.GetAssignment(ctx, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	return t.Observe(ctx, a)
}

// Find loads the assignment of agencyID on a distribution, observing expiry.
func (t *Tracker) Find(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error) {
	a, err := t.store.FindAssignment(ctx, distributionID, agencyID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return t.Observe(ctx, a)
}

// ListForAgency returns an agency inbox with expiry observed on every row.
// The state filter and paging run against the effective state in the store.
func (t *Tracker) ListForAgency(ctx context.Context, params repository.AssignmentListParams) ([]domain.Assignment, error) {
	params.Now = t.now()
	items, err := t.store.ListAgencyAssignments(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Assignment, 0, len(items))
	for _, a := range items {
		observed, err := t.Observe(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, observed)
	}
	return out, nil
}

// Observe expires a if its window has passed and returns the current value.
// A lost race to another writer rereads the row.
func (t *Tracker) Observe(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	if !a.DueForExpiry(t.now()) {
		return a, nil
	}
	return t.Transition(ctx, a, domain.StateExpired)
}

// Transition applies a state machine edge with compare-and-set. If the stored
// state changed underneath, the row is reread and the edge retried against it.
func (t *Tracker) Transition(ctx context.Context, a domain.Assignment, to domain.AssignmentState) (domain.Assignment, error) {
	current := a
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if to == domain.StateExpired && current.State.IsTerminal() {
			// someone else resolved it first; nothing left to expire
			return current, nil
		}
		next, err := current.Transition(to, t.now())
		if err != nil {
			if current.State.IsTerminal() && (to == domain.StatePurchased || to == domain.StateDismissed) {
				return current, domain.ErrAlreadyResolved
			}
			return current, err
		}

		ok, err := t.store.CompareAndSetAssignment(ctx, next, current.State)
		if err != nil {
			return current, err
		}
		if ok {
			t.log.WithContext(ctx).AssignmentTransition(next.ID.String(), string(current.State), string(next.State))
			return next, nil
		}

		current, err = t.store.GetAssignment(ctx, a.ID)
		if err != nil {
			return domain.Assignment{}, err
		}
	}
	return current, fmt.Errorf("assignment %s: %w", a.ID, errContended)
}

var errContended = errors.New("transition lost to concurrent updates")

// MarkViewed moves an assigned assignment to viewed. Viewed and terminal
// assignments are returned unchanged.
func (t *Tracker) MarkViewed(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	if a.State != domain.StateAssigned {
		return a, nil
	}
	next, err := t.Transition(ctx, a, domain.StateViewed)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// a concurrent view or response got there first
		return next, nil
	}
	return next, err
}

// Respond applies an agency response. An agency cannot act on a lead it never
// opened, so an assigned assignment is first moved to viewed and then resolved.
func (t *Tracker) Respond(ctx context.Context, a domain.Assignment, action domain.ResponseAction) (domain.Assignment, error) {
	if !action.AgencyAction() {
		return a, fmt.Errorf("%w: action %q", domain.ErrValidation, action)
	}
	if a.State == domain.StateAssigned {
		viewed, err := t.MarkViewed(ctx, a)
		if err != nil {
			return viewed, err
		}
		a = viewed
	}
	if a.State.IsTerminal() {
		return a, domain.ErrAlreadyResolved
	}
	return t.Transition(ctx, a, domain.AssignmentState(action))
}

// SweepExpired expires up to limit assignments whose window has passed.
// It is the proactive twin of the read-path expiry.
func (t *Tracker) SweepExpired(ctx context.Context, limit int) (int, error) {
	due, err := t.store.ListDueAssignments(ctx, t.now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range due {
		next, err := t.Observe(ctx, a)
		if err != nil {
			return expired, err
		}
		if next.State == domain.StateExpired && a.State != domain.StateExpired {
			expired++
		}
	}
	return expired, nil
}

// MarkNotified stamps notified_at once. It never changes state.
func (t *Tracker) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.store.StampNotified(ctx, id, t.now())
}
