// Package roundrobin hands leads to eligible agencies in a fixed rotation
// whose cursor is persisted per scope.
package roundrobin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadmarket_backend/internal/distribution/repository"

	"github.com/google/uuid"
)

// ErrEmptyPool is returned when Next is called without eligible agencies.
var ErrEmptyPool = errors.New("round-robin: no eligible agencies")

// Scope names.
const (
	ScopeGlobal   = "global"
	ScopeIndustry = "industry"
)

// ScopeKey returns the cursor key for a lead of industry under mode.
// The global mode shares one cursor across industries.
func ScopeKey(mode, industry string) string {
	industry = strings.ToLower(strings.TrimSpace(industry))
	if mode == ScopeGlobal || industry == "" {
		return ScopeGlobal
	}
	return ScopeIndustry + ":" + industry
}

// CommitFunc persists the assignment for the selected agency. It runs inside
// the cursor's transaction; an error aborts both the writes and the advance.
type CommitFunc func(ctx context.Context, agencyID uuid.UUID) error

// Selector picks the next agency of a rotation.
type Selector struct {
	cursors repository.CursorStore
}

// NewSelector creates a selector over a persisted cursor store.
func NewSelector(cursors repository.CursorStore) *Selector {
	return &Selector{cursors: cursors}
}

// Next selects eligible[cursor mod n], runs commit, and stores
// (cursor+1) mod n. If the pool size changed since the last call the cursor
// is reinterpreted against the new size.
func (s *Selector) Next(ctx context.Context, scope string, eligible []uuid.UUID, commit CommitFunc) (uuid.UUID, error) {
	if len(eligible) == 0 {
		return uuid.Nil, ErrEmptyPool
	}

	var selected uuid.UUID
	err := s.cursors.Rotate(ctx, scope, func(ctx context.Context, position int64) (int64, error) {
		n := int64(len(eligible))
		index := position % n
		if index < 0 {
			index += n
		}
		selected = eligible[index]
		if commit != nil {
			if err := commit(ctx, selected); err != nil {
				return 0, err
			}
		}
		return (index + 1) % n, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("round-robin %s: %w", scope, err)
	}
	return selected, nil
}
