// Package domain contains the plain data types and pure rules of lead
// distribution. It has no persistence or transport dependencies.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the business lifecycle of a lead, independent of assignments.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusDistributed LeadStatus = "distributed"
	LeadStatusAssigned    LeadStatus = "assigned"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusConverted   LeadStatus = "converted"
	LeadStatusLost        LeadStatus = "lost"
	LeadStatusArchived    LeadStatus = "archived"
)

// LeadAssignmentState records how the engine disposed of a lead.
type LeadAssignmentState string

const (
	LeadPending     LeadAssignmentState = "pending"
	LeadAssigned    LeadAssignmentState = "assigned"
	LeadDistributed LeadAssignmentState = "distributed"
	LeadUnassigned  LeadAssignmentState = "unassigned"
)

// Location is the geographic part of a lead used for territory matching.
type Location struct {
	Zipcode string `json:"zipcode,omitempty"`
	City    string `json:"city,omitempty"`
	County  string `json:"county,omitempty"`
	State   string `json:"state,omitempty"`
}

// Normalized returns the comparison form: trimmed, lower-cased, and ZIP+4
// reduced to its five digit prefix.
func (l Location) Normalized() Location {
	return Location{
		Zipcode: NormalizeTerritoryValue(TerritoryZipcode, l.Zipcode),
		City:    NormalizeTerritoryValue(TerritoryCity, l.City),
		County:  NormalizeTerritoryValue(TerritoryCounty, l.County),
		State:   NormalizeTerritoryValue(TerritoryState, l.State),
	}
}

// IsEmpty reports whether no location field is present.
func (l Location) IsEmpty() bool {
	n := l.Normalized()
	return n.Zipcode == "" && n.City == "" && n.County == "" && n.State == ""
}

// Value returns the normalized field for a territory type.
func (l Location) Value(t TerritoryType) string {
	n := l.Normalized()
	switch t {
	case TerritoryZipcode:
		return n.Zipcode
	case TerritoryCity:
		return n.City
	case TerritoryCounty:
		return n.County
	case TerritoryState:
		return n.State
	}
	return ""
}

// Contact is the identity part of a lead used for duplicate detection.
type Contact struct {
	Email string
	Phone string
}

// Lead is a prospective customer submission.
type Lead struct {
	ID              uuid.UUID
	PortalID        uuid.UUID
	Industry        string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	PhoneDigits     string
	Location        Location
	RawPayload      json.RawMessage
	Status          LeadStatus
	AssignmentState LeadAssignmentState
	MobileExclusive bool
	CreatedAt       time.Time
}

// Contact returns the lead's contact fields.
func (l Lead) Contact() Contact {
	return Contact{Email: l.Email, Phone: l.Phone}
}

// TerritoryType is the granularity of a territory.
type TerritoryType string

const (
	TerritoryZipcode TerritoryType = "zipcode"
	TerritoryCity    TerritoryType = "city"
	TerritoryCounty  TerritoryType = "county"
	TerritoryState   TerritoryType = "state"
)

// TerritoryTypes lists every territory type in lookup order.
var TerritoryTypes = []TerritoryType{TerritoryZipcode, TerritoryCity, TerritoryCounty, TerritoryState}

// Valid reports whether t is a known territory type.
func (t TerritoryType) Valid() bool {
	switch t {
	case TerritoryZipcode, TerritoryCity, TerritoryCounty, TerritoryState:
		return true
	}
	return false
}

const (
	MinTerritoryPriority = 0
	MaxTerritoryPriority = 10
)

// Territory is an agency's claim on one geographic value.
type Territory struct {
	ID            uuid.UUID
	AgencyID      uuid.UUID
	Type          TerritoryType
	Value         string
	Active        bool
	Priority      int
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}

// NormalizeTerritoryValue trims and lower-cases a value. Zipcodes keep only
// their first five characters so ZIP+4 input matches five digit territories.
func NormalizeTerritoryValue(t TerritoryType, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if t == TerritoryZipcode && len(v) > 5 {
		v = v[:5]
	}
	return v
}

// AccountStatus of an agency account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// SubscriptionStatus of an agency's paid plan.
type SubscriptionStatus string

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Agency is the subset of an agency account the engine reads.
type Agency struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	AccountStatus      AccountStatus
	SubscriptionStatus SubscriptionStatus
	LeadCapacity       *int
	PeriodStartedAt    time.Time
	CreatedAt          time.Time
}

// InGoodStanding reports whether the account and subscription allow new leads.
func (a Agency) InGoodStanding() bool {
	if a.AccountStatus != AccountActive {
		return false
	}
	return a.SubscriptionStatus == SubscriptionTrial || a.SubscriptionStatus == SubscriptionActive
}

// AgencyUsage pairs an agency with the units consumed in its current period.
type AgencyUsage struct {
	Agency    Agency
	UsedUnits int
}

// HasCapacity reports whether another lead fits in the agency's plan.
func (u AgencyUsage) HasCapacity() bool {
	if u.Agency.LeadCapacity == nil {
		return true
	}
	return u.UsedUnits < *u.Agency.LeadCapacity
}

// DistributionMode selects how a portal's leads are handed out.
type DistributionMode string

const (
	ModeRoundRobin DistributionMode = "round_robin"
	ModeExclusive  DistributionMode = "exclusive"
)

// Portal is an external lead source.
type Portal struct {
	ID               uuid.UUID
	Name             string
	Industry         string
	DistributionMode DistributionMode
	Active           bool
}

// DistributionRecord is the single window through which a lead is offered.
type DistributionRecord struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	Location       Location
	IsExclusive    bool
	AvailableUntil time.Time
	PriorityScore  int
	ViewCount      int
	CreatedAt      time.Time
}

// IsOpen reports whether the window still accepts views and responses at now.
func (d DistributionRecord) IsOpen(now time.Time) bool {
	return now.Before(d.AvailableUntil)
}

// AuditOutcome classifies an audit log entry.
type AuditOutcome string

const (
	OutcomeAssigned         AuditOutcome = "assigned"
	OutcomeDistributed      AuditOutcome = "distributed"
	OutcomeNoEligibleAgency AuditOutcome = "no_eligible_agency"
	OutcomeAssignmentFailed AuditOutcome = "assignment_failed"
)

// AuditEntry is one append-only record binding a lead to an outcome.
type AuditEntry struct {
	LeadID       uuid.UUID
	LeadSnapshot json.RawMessage
	AgencyID     *uuid.UUID
	Outcome      AuditOutcome
	CreatedAt    time.Time
}

// IngestionResult reports what happened to one submitted payload. LeadID is
// set whenever the lead was persisted, including when assignment failed.
type IngestionResult struct {
	LeadID            uuid.UUID        `json:"leadId"`
	AssignedAgencyID  *uuid.UUID       `json:"assignedAgencyId"`
	AssignedAgencyIDs []uuid.UUID      `json:"assignedAgencyIds"`
	DistributionID    *uuid.UUID       `json:"distributionId,omitempty"`
	Mode              DistributionMode `json:"mode,omitempty"`
	Outcome           AuditOutcome     `json:"outcome"`
	Errors            []string         `json:"errors"`
}
