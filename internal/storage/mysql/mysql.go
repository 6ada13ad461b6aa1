// Package mysql implements the storage.Executor backend on database/sql with
// the go-sql-driver/mysql driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"ddlforge/internal/storage"
)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Executor, error) {
		return NewExecutor(ctx, cfg.DSN)
	})
}

// NewExecutor opens a MySQL connection for the given DSN, e.g.
// "user:pass@tcp(host:3306)/dbname".
func NewExecutor(ctx context.Context, dsn string) (storage.Executor, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	e := storage.NewSQLExecutor(db, "mysql")
	if err := e.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}
