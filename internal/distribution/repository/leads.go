package repository

import (
	"context"
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
)

const leadColumns = `id, portal_id, industry, first_name, last_name, email, phone, phone_digits,
	zipcode, city, state, county, raw_payload, status, assignment_state, mobile_exclusive, created_at`

// InsertLead stores a new lead.
func (r *Repository) InsertLead(ctx context.Context, lead domain.Lead) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, lead.ID, lead.PortalID, lead.Industry, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.PhoneDigits,
		lead.Location.Zipcode, lead.Location.City, lead.Location.State, lead.Location.County,
		lead.RawPayload, string(lead.Status), string(lead.AssignmentState), lead.MobileExclusive, lead.CreatedAt)
	return classify("insert lead", err)
}

// UpdateLeadDisposition records the engine's outcome on the lead row.
func (r *Repository) UpdateLeadDisposition(ctx context.Context, id uuid.UUID, status domain.LeadStatus, state domain.LeadAssignmentState) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE leads SET status = $2, assignment_state = $3, updated_at = now()
		WHERE id = $1
	`, id, string(status), string(state))
	if err != nil {
		return classify("update lead disposition", err)
	}
	if tag.RowsAffected() == 0 {
		return classify("update lead disposition", errNoRows)
	}
	return nil
}

// GetLead loads one lead.
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	var (
		lead   domain.Lead
		status string
		state  string
	)
	err := r.db(ctx).QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id).Scan(
		&lead.ID, &lead.PortalID, &lead.Industry, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.PhoneDigits,
		&lead.Location.Zipcode, &lead.Location.City, &lead.Location.State, &lead.Location.County,
		&lead.RawPayload, &status, &state, &lead.MobileExclusive, &lead.CreatedAt,
	)
	if err != nil {
		return domain.Lead{}, classify("get lead", err)
	}
	lead.Status = domain.LeadStatus(status)
	lead.AssignmentState = domain.LeadAssignmentState(state)
	return lead, nil
}

// HasRecentLeadWithEmail reports an email match created at or after since.
func (r *Repository) HasRecentLeadWithEmail(ctx context.Context, email string, since time.Time) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leads WHERE email = $1 AND created_at >= $2)
	`, email, since).Scan(&exists)
	return exists, classify("find recent lead by email", err)
}

// HasRecentLeadWithPhoneDigits reports a phone match created at or after since.
func (r *Repository) HasRecentLeadWithPhoneDigits(ctx context.Context, digits string, since time.Time) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leads WHERE phone_digits = $1 AND created_at >= $2)
	`, digits, since).Scan(&exists)
	return exists, classify("find recent lead by phone", err)
}
