// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"encoding/json"
	"time"

	"leadmarket_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Distribution Domain Events
// =============================================================================

// LeadIngested is published once a lead is persisted, whatever its outcome.
type LeadIngested struct {
	BaseEvent
	LeadID     uuid.UUID       `json:"leadId"`
	PortalID   uuid.UUID       `json:"portalId"`
	Outcome    string          `json:"outcome"`
	RawPayload json.RawMessage `json:"rawPayload"`
}

func (e LeadIngested) EventName() string { return "distribution.lead.ingested" }

// LeadAssigned is published once per (lead, agency) assignment. Handlers must
// treat it as fire-and-forget: a failed delivery never changes the assignment.
type LeadAssigned struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	AgencyID       uuid.UUID `json:"agencyId"`
	AssignmentID   uuid.UUID `json:"assignmentId"`
	DistributionID uuid.UUID `json:"distributionId"`
	Exclusive      bool      `json:"exclusive"`
	AvailableUntil time.Time `json:"availableUntil"`
}

func (e LeadAssigned) EventName() string { return "distribution.lead.assigned" }

// AssignmentResolved is published when an agency purchases or dismisses a lead.
type AssignmentResolved struct {
	BaseEvent
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	AgencyID     uuid.UUID `json:"agencyId"`
	Action       string    `json:"action"`
}

func (e AssignmentResolved) EventName() string { return "distribution.assignment.resolved" }

// AssignmentsExpired is published after a sweep expired at least one assignment.
type AssignmentsExpired struct {
	BaseEvent
	Count int `json:"count"`
}

func (e AssignmentsExpired) EventName() string { return "distribution.assignments.expired" }
