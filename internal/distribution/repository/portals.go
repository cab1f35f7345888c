package repository

import (
	"context"

	"leadmarket_backend/internal/distribution/domain"
)

// GetPortalByKeyHash resolves an active portal from its API key hash.
func (r *Repository) GetPortalByKeyHash(ctx context.Context, keyHash string) (domain.Portal, error) {
	var (
		p    domain.Portal
		mode string
	)
	err := r.db(ctx).QueryRow(ctx, `
		SELECT id, name, industry, distribution_mode, is_active
		FROM portals
		WHERE api_key_hash = $1 AND is_active
	`, keyHash).Scan(&p.ID, &p.Name, &p.Industry, &mode, &p.Active)
	if err != nil {
		return domain.Portal{}, classify("get portal by key", err)
	}
	p.DistributionMode = domain.DistributionMode(mode)
	return p, nil
}

// CreatePortal registers a portal with the hash of its API key.
func (r *Repository) CreatePortal(ctx context.Context, p domain.Portal, keyHash, keyPrefix string) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO portals (id, name, industry, distribution_mode, api_key_hash, api_key_prefix, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Industry, string(p.DistributionMode), keyHash, keyPrefix, p.Active)
	return classify("create portal", err)
}
