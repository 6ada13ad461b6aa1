// Package storage defines the executor abstraction the evolution workflows
// run their statements through, plus a registry of concrete backends.
//
// Backends (Postgres, MySQL, MSSQL, SQLite) register a factory for their kind
// at init time; importing internal/storage/all (even blank) makes every
// built-in backend available. Callers open an Executor by kind and DSN and
// stay otherwise backend-agnostic.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Executor runs generated statement text against a live database. The
// orchestrator waits for each call to return before evaluating cancellation
// and advancing; any intra-statement parallelism comes from the statement
// itself, not from the executor.
type Executor interface {
	// Exec runs a statement and discards any result.
	Exec(ctx context.Context, stmt string) error
	// ExecRows runs a statement and returns the affected row count.
	ExecRows(ctx context.Context, stmt string) (int64, error)
	// QueryValue runs a single-value query (COUNT, MAX) and returns the
	// scanned value, which is nil for an empty result.
	QueryValue(ctx context.Context, query string) (any, error)
	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Kind selects the registered backend: "postgres", "mysql", "mssql",
	// "sqlite".
	Kind string
	// DSN is the backend-specific connection string.
	DSN string
}

// Factory constructs an Executor for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Executor, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for a backend kind. It is
// typically called from backend packages' init() functions.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// Open constructs the Executor registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Executor, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for kind %q (missing import of internal/storage/all?)", cfg.Kind)
	}
	return fn(ctx, cfg)
}

// SQLExecutor adapts a database/sql handle to the Executor interface. The
// database/sql-backed backends (mysql, mssql, sqlite) share it.
type SQLExecutor struct {
	db     *sql.DB
	prefix string
}

// NewSQLExecutor wraps an open handle. prefix is used in error messages, e.g.
// "mysql".
func NewSQLExecutor(db *sql.DB, prefix string) *SQLExecutor {
	return &SQLExecutor{db: db, prefix: prefix}
}

func (e *SQLExecutor) Exec(ctx context.Context, stmt string) error {
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: exec: %w", e.prefix, err)
	}
	return nil
}

func (e *SQLExecutor) ExecRows(ctx context.Context, stmt string) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("%s: exec: %w", e.prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", e.prefix, err)
	}
	return n, nil
}

func (e *SQLExecutor) QueryValue(ctx context.Context, query string) (any, error) {
	var v any
	err := e.db.QueryRowContext(ctx, query).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: query: %w", e.prefix, err)
	}
	return v, nil
}

func (e *SQLExecutor) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%s: ping: %w", e.prefix, err)
	}
	return nil
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}
