package repository

import (
	"context"
	"errors"
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const distributionColumns = `id, lead_id, zipcode, city, state, county, is_exclusive,
	available_until, priority_score, view_count, created_at`

// errNoRows lets zero-row updates share the not-found mapping of classify.
var errNoRows = pgx.ErrNoRows

// InsertDistribution stores the lead's single distribution record.
func (r *Repository) InsertDistribution(ctx context.Context, rec domain.DistributionRecord) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO distribution_records (`+distributionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.LeadID, rec.Location.Zipcode, rec.Location.City, rec.Location.State, rec.Location.County,
		rec.IsExclusive, rec.AvailableUntil, rec.PriorityScore, rec.ViewCount, rec.CreatedAt)
	return classify("insert distribution", err)
}

// GetDistribution loads a record by id.
func (r *Repository) GetDistribution(ctx context.Context, id uuid.UUID) (domain.DistributionRecord, error) {
	row := r.db(ctx).QueryRow(ctx, `SELECT `+distributionColumns+` FROM distribution_records WHERE id = $1`, id)
	rec, err := scanDistribution(row)
	return rec, classify("get distribution", err)
}

// GetDistributionByLead loads the record of a lead.
func (r *Repository) GetDistributionByLead(ctx context.Context, leadID uuid.UUID) (domain.DistributionRecord, error) {
	row := r.db(ctx).QueryRow(ctx, `SELECT `+distributionColumns+` FROM distribution_records WHERE lead_id = $1`, leadID)
	rec, err := scanDistribution(row)
	return rec, classify("get distribution by lead", err)
}

// IncrementViewCount bumps view_count while the window is open.
func (r *Repository) IncrementViewCount(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.db(ctx).QueryRow(ctx, `
		UPDATE distribution_records SET view_count = view_count + 1
		WHERE id = $1 AND available_until > $2
		RETURNING view_count
	`, id, now).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrWindowClosed
	}
	return count, classify("increment view count", err)
}

func scanDistribution(row pgx.Row) (domain.DistributionRecord, error) {
	var rec domain.DistributionRecord
	err := row.Scan(&rec.ID, &rec.LeadID, &rec.Location.Zipcode, &rec.Location.City, &rec.Location.State,
		&rec.Location.County, &rec.IsExclusive, &rec.AvailableUntil, &rec.PriorityScore, &rec.ViewCount, &rec.CreatedAt)
	return rec, err
}
