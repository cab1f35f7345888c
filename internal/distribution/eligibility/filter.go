// Package eligibility computes which agencies may receive a lead.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"

	"github.com/google/uuid"
)

// Lookup is the territory index surface the filter needs.
type Lookup interface {
	LookupRanked(ctx context.Context, loc domain.Location) (map[uuid.UUID]int, error)
}

// Candidate is one eligible agency with its best matching territory priority.
type Candidate struct {
	AgencyID  uuid.UUID
	Priority  int
	CreatedAt time.Time
}

// Filter intersects territory matches with account, subscription and capacity state.
type Filter struct {
	territories Lookup
	agencies    repository.AgencyReader
}

// NewFilter creates a filter.
func NewFilter(territories Lookup, agencies repository.AgencyReader) *Filter {
	return &Filter{territories: territories, agencies: agencies}
}

// Filter returns the eligible agencies for loc ordered by (created_at, id).
// No eligible agency is an empty list, not an error.
func (f *Filter) Filter(ctx context.Context, loc domain.Location) ([]uuid.UUID, error) {
	candidates, err := f.Candidates(ctx, loc)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.AgencyID
	}
	return ids, nil
}

// Candidates is Filter with territory priority attached.
func (f *Filter) Candidates(ctx context.Context, loc domain.Location) ([]Candidate, error) {
	ranked, err := f.territories.LookupRanked(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return []Candidate{}, nil
	}

	ids := make([]uuid.UUID, 0, len(ranked))
	for id := range ranked {
		ids = append(ids, id)
	}

	usage, err := f.agencies.AgencyUsage(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("eligibility: load agencies: %w", err)
	}

	out := make([]Candidate, 0, len(usage))
	for _, u := range usage {
		if !u.Agency.InGoodStanding() || !u.HasCapacity() {
			continue
		}
		out = append(out, Candidate{
			AgencyID:  u.Agency.ID,
			Priority:  ranked[u.Agency.ID],
			CreatedAt: u.Agency.CreatedAt,
		})
	}
	return out, nil
}
