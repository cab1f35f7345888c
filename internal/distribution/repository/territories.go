package repository

import (
	"context"
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const territoryColumns = `id, agency_id, type, value, is_active, priority, created_at, deactivated_at`

// MatchActiveTerritories returns active territories for any field of loc.
// loc must already be normalized; empty fields never match.
func (r *Repository) MatchActiveTerritories(ctx context.Context, loc domain.Location) ([]domain.Territory, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT `+territoryColumns+`
		FROM territories
		WHERE is_active
		  AND ((type = 'zipcode' AND value = $1)
		    OR (type = 'city' AND value = $2)
		    OR (type = 'county' AND value = $3)
		    OR (type = 'state' AND value = $4))
	`, loc.Zipcode, loc.City, loc.County, loc.State)
	if err != nil {
		return nil, classify("match territories", err)
	}
	return scanTerritories(rows)
}

// InsertTerritory stores a territory.
func (r *Repository) InsertTerritory(ctx context.Context, t domain.Territory) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO territories (id, agency_id, type, value, is_active, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.AgencyID, string(t.Type), t.Value, t.Active, t.Priority, t.CreatedAt)
	return classify("insert territory", err)
}

// DeactivateTerritory retires an active territory.
func (r *Repository) DeactivateTerritory(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE territories SET is_active = false, deactivated_at = $2
		WHERE id = $1 AND is_active
	`, id, at)
	if err != nil {
		return classify("deactivate territory", err)
	}
	if tag.RowsAffected() == 0 {
		return classify("deactivate territory", errNoRows)
	}
	return nil
}

// ListActiveTerritories lists an agency's active territories, highest priority first.
func (r *Repository) ListActiveTerritories(ctx context.Context, agencyID uuid.UUID) ([]domain.Territory, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT `+territoryColumns+`
		FROM territories
		WHERE agency_id = $1 AND is_active
		ORDER BY priority DESC, type, value
	`, agencyID)
	if err != nil {
		return nil, classify("list territories", err)
	}
	return scanTerritories(rows)
}

func scanTerritories(rows pgx.Rows) ([]domain.Territory, error) {
	defer rows.Close()

	items := make([]domain.Territory, 0)
	for rows.Next() {
		var (
			t   domain.Territory
			typ string
		)
		if err := rows.Scan(&t.ID, &t.AgencyID, &typ, &t.Value, &t.Active, &t.Priority, &t.CreatedAt, &t.DeactivatedAt); err != nil {
			return nil, classify("scan territory", err)
		}
		t.Type = domain.TerritoryType(typ)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan territories", err)
	}
	return items, nil
}
