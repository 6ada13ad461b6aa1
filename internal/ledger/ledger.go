// Package ledger implements the durable operation ledger: an append-mostly
// record of every evolution operation's lifecycle, used for monitoring,
// idempotent resumption, and reporting.
//
// The ledger is backed by SQLite (modernc.org/sqlite) on its own *sql.DB,
// deliberately separate from whatever connection the calling workflow uses to
// execute statements. A failure record therefore survives even when the
// triggering statement's transaction rolls back.
//
// Write-failure policy: Start is the admission gate and returns its errors;
// every later write (Advance, AddRows, Finish) swallows failures and logs
// them, because recording an operation must never be able to fail the
// operation it is describing.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status is an operation lifecycle status. Workflows record their own state
// names here; the terminal set below is shared by every workflow.
type Status string

const (
	StatusInitiated      Status = "INITIATED"
	StatusCompleted      Status = "COMPLETED"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
)

// IsTerminal reports whether s is one of the four terminal statuses. A
// terminal record is never written to again for the same operation id.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ErrActiveOperation is returned by Start when the target object already has
// a non-terminal ledger entry. At most one active operation per target is
// permitted.
var ErrActiveOperation = errors.New("ledger: target already has an active operation")

// ErrNotFound is returned by read-side queries for an unknown operation id.
var ErrNotFound = errors.New("ledger: operation not found")

// Operation is one ledger record.
type Operation struct {
	ID              int64
	Type            string
	Target          string
	TargetKind      string
	Status          Status
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMS      int64
	RowsProcessed   int64
	ObjectsAffected int64
	ErrorCode       string
	ErrorMessage    string
	Context         map[string]any
	CancelRequested bool
}

// Metrics carries the terminal counters passed to Finish.
type Metrics struct {
	Rows    int64
	Objects int64
}

const bootstrapSQL = `
CREATE TABLE IF NOT EXISTS operations (
  operation_id     INTEGER PRIMARY KEY AUTOINCREMENT,
  operation_type   TEXT NOT NULL,
  target_object    TEXT NOT NULL,
  target_kind      TEXT NOT NULL DEFAULT '',
  status           TEXT NOT NULL,
  started_at       INTEGER NOT NULL,
  ended_at         INTEGER,
  duration_ms      INTEGER,
  rows_processed   INTEGER NOT NULL DEFAULT 0,
  objects_affected INTEGER NOT NULL DEFAULT 0,
  error_code       TEXT NOT NULL DEFAULT '',
  error_message    TEXT NOT NULL DEFAULT '',
  context          TEXT NOT NULL DEFAULT '{}',
  cancel_requested INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_operations_target
  ON operations (target_object, status);
CREATE INDEX IF NOT EXISTS idx_operations_started
  ON operations (started_at);
`

// terminalStatuses is the SQL fragment matching the terminal set.
const terminalStatuses = `('COMPLETED', 'PARTIAL_SUCCESS', 'FAILED', 'CANCELLED')`

// Ledger is the durable operation store. Safe for concurrent use; SQLite
// serializes writers underneath.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database at path and applies
// the schema bootstrap.
//
// The DSN is passed to database/sql, e.g. "file:ops.db?cache=shared" or a
// plain file path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger: path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, bootstrapSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: bootstrap: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Start records a new operation in INITIATED status and returns its id. It
// rejects with ErrActiveOperation when the target already has a non-terminal
// record; this is the concurrency gate for "one active operation per target".
func (l *Ledger) Start(ctx context.Context, opType, target, targetKind string, opCtx map[string]any) (int64, error) {
	if opType == "" || target == "" {
		return 0, fmt.Errorf("ledger: start requires operation type and target")
	}
	blob, err := marshalContext(opCtx)
	if err != nil {
		return 0, fmt.Errorf("ledger: start: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: start: begin: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM operations
		 WHERE target_object = ? AND status NOT IN `+terminalStatuses,
		target).Scan(&active)
	if err != nil {
		return 0, fmt.Errorf("ledger: start: active check: %w", err)
	}
	if active > 0 {
		return 0, fmt.Errorf("%w: %s", ErrActiveOperation, target)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO operations (operation_type, target_object, target_kind, status, started_at, context)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		opType, target, targetKind, string(StatusInitiated), time.Now().UnixMilli(), blob)
	if err != nil {
		return 0, fmt.Errorf("ledger: start: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: start: id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: start: commit: %w", err)
	}
	return id, nil
}

// Advance records a state transition for a non-terminal operation. The
// context map, when non-nil, is merged key-by-key into the stored context
// blob. Failures are swallowed and logged.
func (l *Ledger) Advance(ctx context.Context, id int64, status Status, opCtx map[string]any) {
	if err := l.advance(ctx, id, status, opCtx); err != nil {
		log.Printf("ledger: advance swallowed op=%d status=%s err=%v", id, status, err)
	}
}

func (l *Ledger) advance(ctx context.Context, id int64, status Status, opCtx map[string]any) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cur, err := readOne(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("operation already terminal (%s)", cur.Status)
	}

	merged := cur.Context
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range opCtx {
		merged[k] = v
	}
	blob, err := marshalContext(merged)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE operations SET status = ?, context = ? WHERE operation_id = ?`,
		string(status), blob, id); err != nil {
		return err
	}
	return tx.Commit()
}

// AddRows adds delta to the operation's rows-processed counter. Failures are
// swallowed and logged.
func (l *Ledger) AddRows(ctx context.Context, id int64, delta int64) {
	if delta <= 0 {
		return
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE operations SET rows_processed = rows_processed + ?
		 WHERE operation_id = ? AND status NOT IN `+terminalStatuses,
		delta, id)
	if err != nil {
		log.Printf("ledger: addrows swallowed op=%d err=%v", id, err)
	}
}

// Finish writes the terminal record: status, error details, metrics, end
// timestamp, and duration. A second Finish for the same id is a no-op; a
// terminal record is never re-entered. Failures are swallowed and logged.
func (l *Ledger) Finish(ctx context.Context, id int64, status Status, errCode, errMsg string, m Metrics) {
	if !status.IsTerminal() {
		log.Printf("ledger: finish ignored op=%d: %s is not terminal", id, status)
		return
	}
	now := time.Now().UnixMilli()
	res, err := l.db.ExecContext(ctx,
		`UPDATE operations
		 SET status = ?, error_code = ?, error_message = ?,
		     rows_processed = CASE WHEN ? > 0 THEN ? ELSE rows_processed END,
		     objects_affected = objects_affected + ?,
		     ended_at = ?, duration_ms = ? - started_at
		 WHERE operation_id = ? AND status NOT IN `+terminalStatuses,
		string(status), errCode, errMsg, m.Rows, m.Rows, m.Objects, now, now, id)
	if err != nil {
		log.Printf("ledger: finish swallowed op=%d status=%s err=%v", id, status, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("ledger: finish ignored op=%d: record already terminal", id)
	}
}

// RequestCancel sets the cooperative cancellation flag. Workflows consult it
// between batches and steps, never inside an in-flight statement.
func (l *Ledger) RequestCancel(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE operations SET cancel_requested = 1
		 WHERE operation_id = ? AND status NOT IN `+terminalStatuses, id)
	if err != nil {
		return fmt.Errorf("ledger: cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger: cancel op=%d: %w", id, ErrNotFound)
	}
	return nil
}

// CancelRequested reports the cancellation flag. Read failures are treated as
// "not cancelled" so a ledger outage cannot stop a running operation.
func (l *Ledger) CancelRequested(ctx context.Context, id int64) bool {
	var flag int
	err := l.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM operations WHERE operation_id = ?`, id).Scan(&flag)
	if err != nil {
		log.Printf("ledger: cancel check swallowed op=%d err=%v", id, err)
		return false
	}
	return flag == 1
}

// Sweep deletes terminal records older than the cutoff. Non-terminal records
// are never removed regardless of age.
func (l *Ledger) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM operations
		 WHERE status IN `+terminalStatuses+` AND started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: sweep: %w", err)
	}
	return n, nil
}

func marshalContext(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("context: %w", err)
	}
	return string(b), nil
}
