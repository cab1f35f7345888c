package repository

import (
	"context"

	"leadmarket_backend/internal/distribution/domain"

	"github.com/google/uuid"
)

const agencyColumns = `a.id, a.name, a.email, a.account_status, a.subscription_status,
	a.lead_capacity, a.period_started_at, a.created_at`

type agencyScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row agencyScanner, extra ...any) (domain.Agency, error) {
	var (
		a             domain.Agency
		accountStatus string
		subStatus     string
	)
	dest := append([]any{&a.ID, &a.Name, &a.Email, &accountStatus, &subStatus,
		&a.LeadCapacity, &a.PeriodStartedAt, &a.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Agency{}, err
	}
	a.AccountStatus = domain.AccountStatus(accountStatus)
	a.SubscriptionStatus = domain.SubscriptionStatus(subStatus)
	return a, nil
}

// GetAgency loads one agency.
func (r *Repository) GetAgency(ctx context.Context, id uuid.UUID) (domain.Agency, error) {
	row := r.db(ctx).QueryRow(ctx, `SELECT `+agencyColumns+` FROM agencies a WHERE a.id = $1`, id)
	agency, err := scanAgency(row)
	if err != nil {
		return domain.Agency{}, classify("get agency", err)
	}
	return agency, nil
}

// AgencyUsage returns agencies with the assignments created since their period start.
func (r *Repository) AgencyUsage(ctx context.Context, ids []uuid.UUID) ([]domain.AgencyUsage, error) {
	if len(ids) == 0 {
		return []domain.AgencyUsage{}, nil
	}
	rows, err := r.db(ctx).Query(ctx, `
		SELECT `+agencyColumns+`,
			(SELECT count(*) FROM assignments s
			 WHERE s.agency_id = a.id AND s.assigned_at >= a.period_started_at)
		FROM agencies a
		WHERE a.id = ANY($1)
		ORDER BY a.created_at, a.id
	`, ids)
	if err != nil {
		return nil, classify("agency usage", err)
	}
	defer rows.Close()

	items := make([]domain.AgencyUsage, 0, len(ids))
	for rows.Next() {
		var used int64
		agency, err := scanAgency(rows, &used)
		if err != nil {
			return nil, classify("scan agency usage", err)
		}
		items = append(items, domain.AgencyUsage{Agency: agency, UsedUnits: int(used)})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("agency usage", err)
	}
	return items, nil
}
