package evolve

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ddlforge/internal/ledger"
)

/*
Workflow tests drive the orchestrator against a scripted in-memory executor
and a real SQLite ledger under t.TempDir(), then assert on both the executed
statement log and the terminal ledger record.
*/

// fakeExec is a scriptable storage.Executor. The zero value succeeds at
// everything and records every statement.
type fakeExec struct {
	mu      sync.Mutex
	stmts   []string
	pingErr error
	execFn  func(stmt string) error
	rowsFn  func(stmt string) (int64, error)
	queryFn func(query string) (any, error)
}

func (f *fakeExec) record(s string) {
	f.mu.Lock()
	f.stmts = append(f.stmts, s)
	f.mu.Unlock()
}

func (f *fakeExec) Exec(_ context.Context, stmt string) error {
	f.record(stmt)
	if f.execFn != nil {
		return f.execFn(stmt)
	}
	return nil
}

func (f *fakeExec) ExecRows(_ context.Context, stmt string) (int64, error) {
	f.record(stmt)
	if f.rowsFn != nil {
		return f.rowsFn(stmt)
	}
	return 0, nil
}

func (f *fakeExec) QueryValue(_ context.Context, query string) (any, error) {
	f.record(query)
	if f.queryFn != nil {
		return f.queryFn(query)
	}
	return int64(0), nil
}

func (f *fakeExec) Ping(context.Context) error { return f.pingErr }
func (f *fakeExec) Close() error               { return nil }

// executed reports whether any recorded statement contains sub.
func (f *fakeExec) executed(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stmts {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func mustStatus(t *testing.T, l *ledger.Ledger, id int64) ledger.Operation {
	t.Helper()
	op, err := l.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("ledger.Status(%d): %v", id, err)
	}
	return op
}

func TestMove_Completed(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{queryFn: func(string) (any, error) { return int64(42), nil }}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.Move(context.Background(), MoveParams{
		Owner:      "app",
		Table:      "orders",
		Tablespace: "ts_new",
		Parallel:   2,
		Online:     true,
		Indexes:    []string{"orders_ix"},
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}

	for _, want := range []string{
		`ALTER TABLE "app"."orders" MOVE TABLESPACE "ts_new" ONLINE PARALLEL 2;`,
		`ALTER INDEX "app"."orders_ix" REBUILD TABLESPACE "ts_new" PARALLEL 2;`,
		`BEGIN DBMS_STATS.GATHER_TABLE_STATS('app', 'orders'); END;`,
	} {
		if !exec.executed(want) {
			t.Fatalf("statement not executed: %s\nlog: %v", want, exec.stmts)
		}
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", op.Status)
	}
	if op.RowsProcessed != 42 || op.ObjectsAffected != 2 {
		t.Fatalf("metrics: rows=%d objects=%d", op.RowsProcessed, op.ObjectsAffected)
	}
}

func TestMove_PreflightFailure(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{pingErr: errors.New("connection refused")}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.Move(context.Background(), MoveParams{Owner: "app", Table: "orders"})
	var pre *PreflightError
	if !errors.As(err, &pre) {
		t.Fatalf("error = %v, want *PreflightError", err)
	}
	if exec.executed("ALTER TABLE") {
		t.Fatalf("structural statement ran despite preflight failure")
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusFailed || op.ErrorCode != CodePreflight {
		t.Fatalf("record: status=%s code=%s", op.Status, op.ErrorCode)
	}
}

func TestMove_IndexRebuildIsPartial(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{
		queryFn: func(string) (any, error) { return int64(7), nil },
		execFn: func(stmt string) error {
			if strings.Contains(stmt, "REBUILD") {
				return errors.New("ORA-01652: unable to extend")
			}
			return nil
		},
	}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.Move(context.Background(), MoveParams{
		Owner:   "app",
		Table:   "orders",
		Indexes: []string{"orders_ix"},
	})
	var pf *PartialFailure
	if !errors.As(err, &pf) {
		t.Fatalf("error = %v, want *PartialFailure", err)
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusPartialSuccess || op.ErrorCode != CodePartial {
		t.Fatalf("record: status=%s code=%s", op.Status, op.ErrorCode)
	}
}

func TestExecuteDDL(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{}
	led := testLedger(t)
	o := New(exec, led)
	ctx := context.Background()

	// Broken text is rejected before anything is recorded.
	if _, err := o.ExecuteDDL(ctx, "app.orders", `CREATE TABLE "t" (`); err == nil {
		t.Fatalf("ExecuteDDL accepted unbalanced text")
	}
	if _, found, _ := led.ActiveOperation(ctx, "app.orders"); found {
		t.Fatalf("rejected statement left a ledger record")
	}

	id, err := o.ExecuteDDL(ctx, "app.orders", `CREATE TABLE "t" ("id" NUMBER);`)
	if err != nil {
		t.Fatalf("ExecuteDDL: %v", err)
	}
	if !exec.executed(`CREATE TABLE "t"`) {
		t.Fatalf("statement not executed")
	}
	if op := mustStatus(t, led, id); op.Status != ledger.StatusCompleted {
		t.Fatalf("Status = %s", op.Status)
	}
}

func TestExecuteDDL_Failure(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{execFn: func(string) error { return errors.New("ORA-00955: name in use") }}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.ExecuteDDL(context.Background(), "app.orders", `CREATE TABLE "t" ("id" NUMBER);`)
	var exErr *ExecutionError
	if !errors.As(err, &exErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusFailed || op.ErrorCode != CodeExecution {
		t.Fatalf("record: status=%s code=%s", op.Status, op.ErrorCode)
	}
}

func TestErrCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"preflight", &PreflightError{Target: "t"}, CodePreflight},
		{"execution", &ExecutionError{OpID: 1}, CodeExecution},
		{"partial", &PartialFailure{OpID: 1}, CodePartial},
		{"cancelled", &CancelledError{OpID: 1}, CodeCancelled},
		{"timeout", context.DeadlineExceeded, CodeTimeout},
		{"plain", errors.New("boom"), CodeExecution},
	}
	for _, tc := range cases {
		if got := errCode(tc.err); got != tc.want {
			t.Errorf("%s: errCode = %s, want %s", tc.name, got, tc.want)
		}
	}
}
