// Package sqlite implements the storage.Executor backend on database/sql
// with the pure-Go modernc.org/sqlite driver. It doubles as the in-process
// backend for tests, since it needs no running server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"ddlforge/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Executor, error) {
		return NewExecutor(ctx, cfg.DSN)
	})
}

// NewExecutor opens a SQLite database for the given DSN, e.g.
// "file:work.db?cache=shared" or a plain path.
func NewExecutor(ctx context.Context, dsn string) (storage.Executor, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	e := storage.NewSQLExecutor(db, "sqlite")
	if err := e.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}
