package repository

import (
	"context"
	"errors"

	"leadmarket_backend/internal/distribution/domain"
)

// Rotate locks the scope's cursor row with SELECT ... FOR UPDATE for the
// duration of one transaction. Concurrent rotations on the same scope queue
// on the row lock, so no two callers observe the same position.
func (r *Repository) Rotate(ctx context.Context, scope string, pick func(ctx context.Context, position int64) (int64, error)) error {
	return r.InTx(ctx, func(ctx context.Context) error {
		q := r.db(ctx)
		if _, err := q.Exec(ctx, `
			INSERT INTO rotation_cursors (scope) VALUES ($1)
			ON CONFLICT (scope) DO NOTHING
		`, scope); err != nil {
			return classify("init cursor", err)
		}

		var position int64
		if err := q.QueryRow(ctx, `
			SELECT position FROM rotation_cursors WHERE scope = $1 FOR UPDATE
		`, scope).Scan(&position); err != nil {
			return classify("lock cursor", err)
		}

		next, err := pick(ctx, position)
		if err != nil {
			return err
		}

		if _, err := q.Exec(ctx, `
			UPDATE rotation_cursors SET position = $2, updated_at = now() WHERE scope = $1
		`, scope, next); err != nil {
			return classify("advance cursor", err)
		}
		return nil
	})
}

// CursorPosition reads a scope's cursor; an unknown scope is at zero.
func (r *Repository) CursorPosition(ctx context.Context, scope string) (int64, error) {
	var position int64
	err := r.db(ctx).QueryRow(ctx, `SELECT position FROM rotation_cursors WHERE scope = $1`, scope).Scan(&position)
	if err != nil {
		err = classify("read cursor", err)
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return position, nil
}
