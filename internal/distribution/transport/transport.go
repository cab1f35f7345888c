// Package transport holds the JSON request and response shapes of the
// distribution HTTP API.
package transport

import (
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
)

// ResolveRequest is an agency's response to a lead.
type ResolveRequest struct {
	Action domain.ResponseAction `json:"action" validate:"required,oneof=purchased dismissed"`
}

// ListAssignmentsQuery filters the agency inbox.
type ListAssignmentsQuery struct {
	State  string `form:"state" validate:"omitempty,oneof=assigned viewed purchased dismissed expired"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

// CreateTerritoryRequest grants an agency a territory.
type CreateTerritoryRequest struct {
	AgencyID uuid.UUID `json:"agencyId" validate:"required"`
	Type     string    `json:"type" validate:"required,oneof=zipcode city county state"`
	Value    string    `json:"value" validate:"required,max=100"`
	Priority int       `json:"priority" validate:"min=0,max=10"`
}

// SweepRequest bounds a manual expiry sweep.
type SweepRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=10000"`
}

// CreatePortalRequest registers an intake portal.
type CreatePortalRequest struct {
	Name             string `json:"name" validate:"required,min=1,max=100"`
	Industry         string `json:"industry" validate:"required,max=64"`
	DistributionMode string `json:"distributionMode" validate:"required,oneof=round_robin exclusive"`
}

// AssignmentResponse is an assignment as agencies see it.
type AssignmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	DistributionID uuid.UUID  `json:"distributionId"`
	LeadID         uuid.UUID  `json:"leadId"`
	AgencyID       uuid.UUID  `json:"agencyId"`
	State          string     `json:"state"`
	AssignedAt     time.Time  `json:"assignedAt"`
	NotifiedAt     *time.Time `json:"notifiedAt,omitempty"`
	ViewedAt       *time.Time `json:"viewedAt,omitempty"`
	RespondedAt    *time.Time `json:"respondedAt,omitempty"`
	ResponseAction *string    `json:"responseAction,omitempty"`
	AvailableUntil time.Time  `json:"availableUntil"`
}

// ToAssignmentResponse converts a domain assignment.
func ToAssignmentResponse(a domain.Assignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:             a.ID,
		DistributionID: a.DistributionID,
		LeadID:         a.LeadID,
		AgencyID:       a.AgencyID,
		State:          string(a.State),
		AssignedAt:     a.AssignedAt,
		NotifiedAt:     a.NotifiedAt,
		ViewedAt:       a.ViewedAt,
		RespondedAt:    a.RespondedAt,
		AvailableUntil: a.AvailableUntil,
	}
	if a.ResponseAction != nil {
		action := string(*a.ResponseAction)
		resp.ResponseAction = &action
	}
	return resp
}

// ToAssignmentResponses converts a list, never returning nil.
func ToAssignmentResponses(items []domain.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, len(items))
	for i, a := range items {
		out[i] = ToAssignmentResponse(a)
	}
	return out
}

// TerritoryResponse is a territory as admins see it.
type TerritoryResponse struct {
	ID        uuid.UUID `json:"id"`
	AgencyID  uuid.UUID `json:"agencyId"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Priority  int       `json:"priority"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToTerritoryResponse converts a domain territory.
func ToTerritoryResponse(t domain.Territory) TerritoryResponse {
	return TerritoryResponse{
		ID:        t.ID,
		AgencyID:  t.AgencyID,
		Type:      string(t.Type),
		Value:     t.Value,
		Priority:  t.Priority,
		IsActive:  t.Active,
		CreatedAt: t.CreatedAt,
	}
}

// DistributionResponse is a distribution record with its assignments.
type DistributionResponse struct {
	ID             uuid.UUID            `json:"id"`
	LeadID         uuid.UUID            `json:"leadId"`
	IsExclusive    bool                 `json:"isExclusive"`
	AvailableUntil time.Time            `json:"availableUntil"`
	PriorityScore  int                  `json:"priorityScore"`
	ViewCount      int                  `json:"viewCount"`
	CreatedAt      time.Time            `json:"createdAt"`
	Assignments    []AssignmentResponse `json:"assignments"`
}

// ToDistributionResponse converts a record and its assignments.
func ToDistributionResponse(rec domain.DistributionRecord, items []domain.Assignment) DistributionResponse {
	return DistributionResponse{
		ID:             rec.ID,
		LeadID:         rec.LeadID,
		IsExclusive:    rec.IsExclusive,
		AvailableUntil: rec.AvailableUntil,
		PriorityScore:  rec.PriorityScore,
		ViewCount:      rec.ViewCount,
		CreatedAt:      rec.CreatedAt,
		Assignments:    ToAssignmentResponses(items),
	}
}

// SweepResponse reports a manual sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// PortalResponse describes a portal.
type PortalResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Industry         string    `json:"industry"`
	DistributionMode string    `json:"distributionMode"`
	KeyPrefix        string    `json:"keyPrefix"`
}

// CreatePortalResponse includes the plaintext key, shown only once.
type CreatePortalResponse struct {
	PortalResponse
	Key string `json:"key"`
}
