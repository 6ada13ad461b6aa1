// Package postgres implements the storage.Executor backend on pgx v5. A
// pooled connection keeps the executor usable across the long-running,
// multi-statement workflows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ddlforge/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Executor, error) {
		return NewExecutor(ctx, cfg.DSN)
	})
}

// Executor is a Postgres-backed storage.Executor.
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor opens a pgx pool for the given DSN.
func NewExecutor(ctx context.Context, dsn string) (*Executor, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	return &Executor{pool: pool}, nil
}

func (e *Executor) Exec(ctx context.Context, stmt string) error {
	if _, err := e.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func (e *Executor) ExecRows(ctx context.Context, stmt string) (int64, error) {
	tag, err := e.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("postgres: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (e *Executor) QueryValue(ctx context.Context, query string) (any, error) {
	var v any
	err := e.pool.QueryRow(ctx, query).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return v, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}
