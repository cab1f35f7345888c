// Package repository persists the distribution engine's state in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Repository is the Postgres implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// New creates a Postgres-backed repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// db returns the transaction carried by ctx, or the pool.
func (r *Repository) db(ctx context.Context) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// InTx runs fn in a transaction. Repository calls made with the ctx passed to
// fn join that transaction. Nested calls reuse the outer transaction.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// constraint names from migrations/00001_distribution_schema.sql
var uniqueConstraints = map[string]error{
	"distribution_records_lead_uidx":      domain.ErrDuplicateDistribution,
	"assignments_distribution_agency_uidx": domain.ErrDuplicateAssignment,
	"territories_one_active_uidx":          domain.ErrTerritoryExists,
}

// classify maps driver errors onto domain sentinels and retryable kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			if sentinel, ok := uniqueConstraints[pgErr.ConstraintName]; ok {
				return fmt.Errorf("%s: %w", op, sentinel)
			}
			return apperr.Wrap(apperr.KindConflict, "duplicate record", err).WithOp(op)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return apperr.Unavailable("database temporarily unavailable", err).WithOp(op)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable("database temporarily unavailable", err).WithOp(op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
