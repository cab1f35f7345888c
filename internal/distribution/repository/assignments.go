package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assignmentSelect = `
	SELECT a.id, a.distribution_id, a.lead_id, a.agency_id, a.state, a.assigned_at,
		a.notified_at, a.viewed_at, a.responded_at, a.response_action, d.available_until
	FROM assignments a
	JOIN distribution_records d ON d.id = a.distribution_id`

// InsertAssignment stores a new assignment.
func (r *Repository) InsertAssignment(ctx context.Context, a domain.Assignment) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO assignments (id, distribution_id, lead_id, agency_id, state, assigned_at,
			notified_at, viewed_at, responded_at, response_action)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.DistributionID, a.LeadID, a.AgencyID, string(a.State), a.AssignedAt,
		a.NotifiedAt, a.ViewedAt, a.RespondedAt, actionValue(a.ResponseAction))
	return classify("insert assignment", err)
}

// GetAssignment loads one assignment.
func (r *Repository) GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	a, err := scanAssignment(r.db(ctx).QueryRow(ctx, assignmentSelect+` WHERE a.id = $1`, id))
	return a, classify("get assignment", err)
}

// FindAssignment loads the assignment of an agency on a distribution.
func (r *Repository) FindAssignment(ctx context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error) {
	a, err := scanAssignment(r.db(ctx).QueryRow(ctx,
		assignmentSelect+` WHERE a.distribution_id = $1 AND a.agency_id = $2`, distributionID, agencyID))
	return a, classify("find assignment", err)
}

// ListAssignmentsByDistribution lists every assignment of a record.
func (r *Repository) ListAssignmentsByDistribution(ctx context.Context, distributionID uuid.UUID) ([]domain.Assignment, error) {
	rows, err := r.db(ctx).Query(ctx, assignmentSelect+`
		WHERE a.distribution_id = $1
		ORDER BY a.assigned_at, a.id
	`, distributionID)
	if err != nil {
		return nil, classify("list distribution assignments", err)
	}
	return scanAssignments(rows)
}

// ListAgencyAssignments lists an agency inbox, newest first.
func (r *Repository) ListAgencyAssignments(ctx context.Context, params AssignmentListParams) ([]domain.Assignment, error) {
	where := []string{"a.agency_id = $1"}
	args := []any{params.AgencyID}
	if params.State != nil {
		now := params.Now
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, string(*params.State), now)
		where = append(where, fmt.Sprintf(`CASE
			WHEN a.state IN ('assigned', 'viewed') AND d.available_until <= $%d THEN 'expired'
			ELSE a.state
		END = $%d`, len(args), len(args)-1))
	}
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, params.Offset)

	rows, err := r.db(ctx).Query(ctx, assignmentSelect+`
		WHERE `+strings.Join(where, " AND ")+fmt.Sprintf(`
		ORDER BY a.assigned_at DESC, a.id
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, classify("list agency assignments", err)
	}
	return scanAssignments(rows)
}

// ListDueAssignments lists open assignments whose window ended at or before now.
func (r *Repository) ListDueAssignments(ctx context.Context, now time.Time, limit int) ([]domain.Assignment, error) {
	rows, err := r.db(ctx).Query(ctx, assignmentSelect+`
		WHERE a.state IN ('assigned', 'viewed') AND d.available_until <= $1
		ORDER BY d.available_until, a.id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, classify("list due assignments", err)
	}
	return scanAssignments(rows)
}

// CompareAndSetAssignment persists next if the row is still in expected.
func (r *Repository) CompareAndSetAssignment(ctx context.Context, next domain.Assignment, expected domain.AssignmentState) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE assignments
		SET state = $2, viewed_at = $3, responded_at = $4, response_action = $5
		WHERE id = $1 AND state = $6
	`, next.ID, string(next.State), next.ViewedAt, next.RespondedAt, actionValue(next.ResponseAction), string(expected))
	if err != nil {
		return false, classify("update assignment", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StampNotified sets notified_at once.
func (r *Repository) StampNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE assignments SET notified_at = $2 WHERE id = $1 AND notified_at IS NULL
	`, id, at)
	if err != nil {
		return false, classify("stamp notified", err)
	}
	return tag.RowsAffected() == 1, nil
}

func actionValue(a *domain.ResponseAction) *string {
	if a == nil {
		return nil
	}
	s := string(*a)
	return &s
}

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var (
		a      domain.Assignment
		state  string
		action *string
	)
	err := row.Scan(&a.ID, &a.DistributionID, &a.LeadID, &a.AgencyID, &state, &a.AssignedAt,
		&a.NotifiedAt, &a.ViewedAt, &a.RespondedAt, &action, &a.AvailableUntil)
	if err != nil {
		return domain.Assignment{}, err
	}
	a.State = domain.AssignmentState(state)
	if action != nil {
		ra := domain.ResponseAction(*action)
		a.ResponseAction = &ra
	}
	return a, nil
}

func scanAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	defer rows.Close()

	items := make([]domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, classify("scan assignment", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("scan assignments", err)
	}
	return items, nil
}
