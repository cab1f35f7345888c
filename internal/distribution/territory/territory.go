// Package territory resolves which agencies hold rights to a lead's location
// and manages those rights.
package territory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"

	"github.com/google/uuid"
)

// AgencySet is a set of agency IDs.
type AgencySet map[uuid.UUID]struct{}

// Has reports membership.
func (s AgencySet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Index answers territory lookups.
type Index struct {
	store repository.TerritoryReader
}

// NewIndex creates an index over store.
func NewIndex(store repository.TerritoryReader) *Index {
	return &Index{store: store}
}

// Lookup returns every agency with an active territory matching any field of
// loc. An agency matching several fields appears once. A location with no
// fields yields an empty set without touching the store.
func (i *Index) Lookup(ctx context.Context, loc domain.Location) (AgencySet, error) {
	ranked, err := i.LookupRanked(ctx, loc)
	if err != nil {
		return nil, err
	}
	set := make(AgencySet, len(ranked))
	for id := range ranked {
		set[id] = struct{}{}
	}
	return set, nil
}

// LookupRanked is Lookup keeping, per agency, the highest priority among its
// matching territories.
func (i *Index) LookupRanked(ctx context.Context, loc domain.Location) (map[uuid.UUID]int, error) {
	ranked := make(map[uuid.UUID]int)
	if loc.IsEmpty() {
		return ranked, nil
	}

	norm := loc.Normalized()
	territories, err := i.store.MatchActiveTerritories(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("territory lookup: %w", err)
	}
	for _, t := range territories {
		if !Matches(t, norm) {
			continue
		}
		if p, seen := ranked[t.AgencyID]; !seen || t.Priority > p {
			ranked[t.AgencyID] = t.Priority
		}
	}
	return ranked, nil
}

// Matches reports whether an active territory covers loc.
func Matches(t domain.Territory, loc domain.Location) bool {
	if !t.Active {
		return false
	}
	v := loc.Value(t.Type)
	return v != "" && v == domain.NormalizeTerritoryValue(t.Type, t.Value)
}

// Writer is the store surface territory management needs.
type Writer interface {
	InsertTerritory(ctx context.Context, t domain.Territory) error
	DeactivateTerritory(ctx context.Context, id uuid.UUID, at time.Time) error
	ListActiveTerritories(ctx context.Context, agencyID uuid.UUID) ([]domain.Territory, error)
}

// NewTerritory validates and normalizes a territory claim.
func NewTerritory(agencyID uuid.UUID, typ domain.TerritoryType, value string, priority int, now time.Time) (domain.Territory, error) {
	typ = domain.TerritoryType(strings.ToLower(strings.TrimSpace(string(typ))))
	if !typ.Valid() {
		return domain.Territory{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidTerritory, typ)
	}
	normalized := domain.NormalizeTerritoryValue(typ, value)
	if normalized == "" {
		return domain.Territory{}, fmt.Errorf("%w: empty value", domain.ErrInvalidTerritory)
	}
	if priority < domain.MinTerritoryPriority || priority > domain.MaxTerritoryPriority {
		return domain.Territory{}, fmt.Errorf("%w: priority %d outside %d-%d",
			domain.ErrInvalidTerritory, priority, domain.MinTerritoryPriority, domain.MaxTerritoryPriority)
	}
	return domain.Territory{
		ID:        uuid.New(),
		AgencyID:  agencyID,
		Type:      typ,
		Value:     normalized,
		Active:    true,
		Priority:  priority,
		CreatedAt: now,
	}, nil
}

// AddTerritory grants agencyID a territory. A second active territory for the
// same (agency, type, value) is rejected with ErrTerritoryExists.
func AddTerritory(ctx context.Context, store Writer, agencyID uuid.UUID, typ domain.TerritoryType, value string, priority int, now time.Time) (domain.Territory, error) {
	t, err := NewTerritory(agencyID, typ, value, priority, now)
	if err != nil {
		return domain.Territory{}, err
	}
	if err := store.InsertTerritory(ctx, t); err != nil {
		return domain.Territory{}, err
	}
	return t, nil
}

// DeactivateTerritory retires a territory so it no longer matches leads.
func DeactivateTerritory(ctx context.Context, store Writer, id uuid.UUID, now time.Time) error {
	return store.DeactivateTerritory(ctx, id, now)
}

// ActiveTerritories lists an agency's active territories, highest priority first.
func ActiveTerritories(ctx context.Context, store Writer, agencyID uuid.UUID) ([]domain.Territory, error) {
	return store.ListActiveTerritories(ctx, agencyID)
}
