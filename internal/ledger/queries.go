// Read-side queries: status lookups, per-target history, performance and
// error summaries for the monitoring surface.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const operationColumns = `operation_id, operation_type, target_object, target_kind, status,
	started_at, COALESCE(ended_at, 0), COALESCE(duration_ms, 0),
	rows_processed, objects_affected, error_code, error_message, context, cancel_requested`

func scanOperation(scan func(...any) error) (Operation, error) {
	var (
		op             Operation
		status         string
		startMS, endMS int64
		blob           string
		cancelFlag     int
	)
	err := scan(&op.ID, &op.Type, &op.Target, &op.TargetKind, &status,
		&startMS, &endMS, &op.DurationMS,
		&op.RowsProcessed, &op.ObjectsAffected, &op.ErrorCode, &op.ErrorMessage, &blob, &cancelFlag)
	if err != nil {
		return Operation{}, err
	}
	op.Status = Status(status)
	op.StartedAt = time.UnixMilli(startMS)
	if endMS > 0 {
		op.EndedAt = time.UnixMilli(endMS)
	}
	op.CancelRequested = cancelFlag == 1
	if blob != "" && blob != "{}" {
		if err := json.Unmarshal([]byte(blob), &op.Context); err != nil {
			// A mangled context blob should not hide the record itself.
			op.Context = map[string]any{"_raw": blob}
		}
	}
	return op, nil
}

func readOne(ctx context.Context, q queryRower, id int64) (Operation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE operation_id = ?`, id)
	op, err := scanOperation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, fmt.Errorf("op=%d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// ActiveOperation returns the non-terminal ledger record for a target, if
// one exists. The second return value reports whether one was found.
func (l *Ledger) ActiveOperation(ctx context.Context, target string) (Operation, bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE target_object = ? AND status NOT IN `+terminalStatuses+`
		 ORDER BY operation_id DESC LIMIT 1`, target)
	op, err := scanOperation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, false, nil
	}
	if err != nil {
		return Operation{}, false, fmt.Errorf("ledger: active lookup: %w", err)
	}
	return op, true, nil
}

// Status returns the current ledger record for an operation id.
func (l *Ledger) Status(ctx context.Context, id int64) (Operation, error) {
	return readOne(ctx, l.db, id)
}

// History returns the operations recorded against a target within the last
// given number of days, newest first.
func (l *Ledger) History(ctx context.Context, target string, days int) ([]Operation, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).UnixMilli()
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE target_object = ? AND started_at >= ?
		 ORDER BY operation_id DESC`, target, since)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ledger: history: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Summary aggregates completed runs of one operation type against a target.
type Summary struct {
	Target        string
	Type          string
	Runs          int64
	Completed     int64
	Failed        int64
	AvgDurationMS int64
	MaxDurationMS int64
	TotalRows     int64
}

// PerformanceSummary aggregates duration and row counters over the terminal
// records for a target and operation type. An empty opType matches all types.
func (l *Ledger) PerformanceSummary(ctx context.Context, target, opType string) (Summary, error) {
	s := Summary{Target: target, Type: opType}
	query := `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status IN ('FAILED', 'PARTIAL_SUCCESS') THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(duration_ms), 0),
		COALESCE(MAX(duration_ms), 0),
		COALESCE(SUM(rows_processed), 0)
	 FROM operations
	 WHERE target_object = ? AND status IN ` + terminalStatuses + `
	   AND (? = '' OR operation_type = ?)`
	var avg float64
	err := l.db.QueryRowContext(ctx, query, target, opType, opType).
		Scan(&s.Runs, &s.Completed, &s.Failed, &avg, &s.MaxDurationMS, &s.TotalRows)
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: performance summary: %w", err)
	}
	s.AvgDurationMS = int64(avg)
	return s, nil
}

// ErrorCount is one row of the error summary: failures grouped by operation
// type and error code.
type ErrorCount struct {
	Type      string
	ErrorCode string
	Count     int64
	LastSeen  time.Time
}

// ErrorSummary groups failed and partially-successful operations since the
// given time by operation type and error code, most frequent first.
func (l *Ledger) ErrorSummary(ctx context.Context, since time.Time) ([]ErrorCount, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT operation_type, error_code, COUNT(*), MAX(started_at)
		 FROM operations
		 WHERE status IN ('FAILED', 'PARTIAL_SUCCESS') AND started_at >= ?
		 GROUP BY operation_type, error_code
		 ORDER BY COUNT(*) DESC, operation_type`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("ledger: error summary: %w", err)
	}
	defer rows.Close()

	var out []ErrorCount
	for rows.Next() {
		var ec ErrorCount
		var lastMS int64
		if err := rows.Scan(&ec.Type, &ec.ErrorCode, &ec.Count, &lastMS); err != nil {
			return nil, fmt.Errorf("ledger: error summary: %w", err)
		}
		ec.LastSeen = time.UnixMilli(lastMS)
		out = append(out, ec)
	}
	return out, rows.Err()
}
