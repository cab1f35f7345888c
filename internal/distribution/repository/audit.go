package repository

import (
	"context"

	"leadmarket_backend/internal/distribution/domain"
)

// AppendAudit writes one audit row. The table rejects UPDATE and DELETE.
func (r *Repository) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO distribution_audit_log (lead_id, lead_snapshot, agency_id, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.LeadID, entry.LeadSnapshot, entry.AgencyID, string(entry.Outcome), entry.CreatedAt)
	return classify("append audit", err)
}
