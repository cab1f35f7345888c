package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentState is a node of the assignment state machine.
type AssignmentState string

const (
	StateAssigned  AssignmentState = "assigned"
	StateViewed    AssignmentState = "viewed"
	StatePurchased AssignmentState = "purchased"
	StateDismissed AssignmentState = "dismissed"
	StateExpired   AssignmentState = "expired"
)

// IsTerminal reports whether no transition may leave s.
func (s AssignmentState) IsTerminal() bool {
	return s == StatePurchased || s == StateDismissed || s == StateExpired
}

// ResponseAction is how a terminal assignment was reached.
type ResponseAction string

const (
	ActionPurchased ResponseAction = "purchased"
	ActionDismissed ResponseAction = "dismissed"
	ActionExpired   ResponseAction = "expired"
)

// AgencyAction reports whether an agency may request a as an explicit response.
func (a ResponseAction) AgencyAction() bool {
	return a == ActionPurchased || a == ActionDismissed
}

var transitions = map[AssignmentState][]AssignmentState{
	StateAssigned: {StateViewed, StateExpired},
	StateViewed:   {StatePurchased, StateDismissed, StateExpired},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to AssignmentState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Assignment binds one lead to one agency's opportunity to act on it.
type Assignment struct {
	ID             uuid.UUID
	DistributionID uuid.UUID
	LeadID         uuid.UUID
	AgencyID       uuid.UUID
	State          AssignmentState
	AssignedAt     time.Time
	NotifiedAt     *time.Time
	ViewedAt       *time.Time
	RespondedAt    *time.Time
	ResponseAction *ResponseAction

	// AvailableUntil mirrors the owning distribution record's window end.
	AvailableUntil time.Time
}

// NewAssignment creates an assignment in its initial state.
func NewAssignment(distributionID, leadID, agencyID uuid.UUID, availableUntil, now time.Time) Assignment {
	return Assignment{
		ID:             uuid.New(),
		DistributionID: distributionID,
		LeadID:         leadID,
		AgencyID:       agencyID,
		State:          StateAssigned,
		AssignedAt:     now,
		AvailableUntil: availableUntil,
	}
}

// latest returns the last stamp of the assignment so new stamps never go backwards.
func (a Assignment) latest() time.Time {
	t := a.AssignedAt
	if a.ViewedAt != nil && a.ViewedAt.After(t) {
		t = *a.ViewedAt
	}
	return t
}

func clampAfter(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}

// MarkViewed applies the first view. It reports whether the state changed;
// an already viewed or terminal assignment is returned unchanged.
func (a Assignment) MarkViewed(now time.Time) (Assignment, bool) {
	if a.State != StateAssigned {
		return a, false
	}
	viewedAt := clampAfter(now, a.AssignedAt)
	a.ViewedAt = &viewedAt
	a.State = StateViewed
	return a, true
}

// Respond moves a viewed assignment to an agency-chosen terminal state. An
// unviewed assignment yields ErrInvalidTransition.
func (a Assignment) Respond(action ResponseAction, now time.Time) (Assignment, error) {
	if a.State.IsTerminal() {
		return a, ErrAlreadyResolved
	}
	if !action.AgencyAction() {
		return a, ErrInvalidTransition
	}
	to := AssignmentState(action)
	if !CanTransition(a.State, to) {
		return a, ErrInvalidTransition
	}
	respondedAt := clampAfter(now, a.latest())
	a.State = to
	a.RespondedAt = &respondedAt
	a.ResponseAction = &action
	return a, nil
}

// Expire closes an unresolved assignment whose window has passed. The
// response stamp is the window end, never earlier than any prior stamp.
func (a Assignment) Expire() (Assignment, error) {
	if a.State.IsTerminal() {
		return a, ErrInvalidTransition
	}
	respondedAt := clampAfter(a.AvailableUntil, a.latest())
	action := ActionExpired
	a.State = StateExpired
	a.RespondedAt = &respondedAt
	a.ResponseAction = &action
	return a, nil
}

// DueForExpiry reports whether a lazy read at now must expire a.
func (a Assignment) DueForExpiry(now time.Time) bool {
	return !a.State.IsTerminal() && !now.Before(a.AvailableUntil)
}

// TimestampsMonotonic checks responded_at >= viewed_at >= assigned_at where present.
func (a Assignment) TimestampsMonotonic() bool {
	if a.ViewedAt != nil && a.ViewedAt.Before(a.AssignedAt) {
		return false
	}
	if a.RespondedAt != nil {
		if a.RespondedAt.Before(a.AssignedAt) {
			return false
		}
		if a.ViewedAt != nil && a.RespondedAt.Before(*a.ViewedAt) {
			return false
		}
	}
	return true
}

// Transition applies any edge of the state machine. Leaving a terminal state
// or skipping backwards yields ErrInvalidTransition.
func (a Assignment) Transition(to AssignmentState, now time.Time) (Assignment, error) {
	if a.State.IsTerminal() || !CanTransition(a.State, to) {
		return a, ErrInvalidTransition
	}
	switch to {
	case StateViewed:
		next, _ := a.MarkViewed(now)
		return next, nil
	case StateExpired:
		return a.Expire()
	default:
		return a.Respond(ResponseAction(to), now)
	}
}
