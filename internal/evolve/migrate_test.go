package evolve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ddlforge/internal/ddl"
	"ddlforge/internal/ledger"
)

func migrateDef() ddl.TableDef {
	return ddl.TableDef{
		Owner: "app",
		Name:  "orders",
		Kind:  ddl.KindHeap,
		Columns: []ddl.Column{
			{Name: "id", Type: ddl.TypeNumber, Precision: 12, NotNull: true},
			{Name: "total", Type: ddl.TypeNumber, Precision: 12, Scale: 2},
		},
	}
}

// sourceSim models a source table with rows sequential keys 1..total and an
// interim table filled by the batched copy. It answers the COUNT and MAX
// probes the copy-swap machine issues and applies its INSERT batches.
type sourceSim struct {
	mu     sync.Mutex
	total  int64
	copied int64
	batch  int64
	// afterBatch, when set, runs once after the first committed batch.
	afterBatch func()
	fired      bool
}

func (s *sourceSim) query(q string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.HasPrefix(q, "SELECT MAX"):
		if s.copied == 0 {
			return nil, nil
		}
		return s.copied, nil
	case strings.Contains(q, `"orders_new"`):
		return s.copied, nil
	default:
		return s.total, nil
	}
}

func (s *sourceSim) execRows(stmt string) (int64, error) {
	if !strings.Contains(stmt, "FETCH FIRST") {
		// Delta sync: the copy loop already drained the source.
		return 0, nil
	}
	s.mu.Lock()
	n := s.total - s.copied
	if n > s.batch {
		n = s.batch
	}
	s.copied += n
	hook := s.afterBatch
	fire := hook != nil && !s.fired
	s.fired = true
	s.mu.Unlock()
	if fire {
		hook()
	}
	return n, nil
}

func TestMigrate_CopySwap(t *testing.T) {
	t.Parallel()
	sim := &sourceSim{total: 25, batch: 10}
	exec := &fakeExec{queryFn: sim.query, rowsFn: sim.execRows}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.Migrate(context.Background(), MigrateParams{
		Def:       migrateDef(),
		KeyColumn: "id",
		BatchSize: 10,
		Parallel:  2,
	})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, want := range []string{
		`CREATE TABLE "app"."orders_new" (`,
		`WHERE "id" > 10`,
		`RENAME TABLE "app"."orders" TO "orders_old";`,
		`RENAME TABLE "app"."orders_new" TO "orders";`,
		`DROP TABLE "app"."orders_old";`,
	} {
		if !exec.executed(want) {
			t.Fatalf("statement not executed: %s\nlog: %v", want, exec.stmts)
		}
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", op.Status)
	}
	if op.RowsProcessed != 25 {
		t.Fatalf("RowsProcessed = %d, want 25", op.RowsProcessed)
	}
}

func TestMigrate_CancelledBetweenBatches(t *testing.T) {
	t.Parallel()
	led := testLedger(t)
	ctx := context.Background()

	sim := &sourceSim{total: 100, batch: 10}
	sim.afterBatch = func() {
		op, found, err := led.ActiveOperation(ctx, "app.orders")
		if err != nil || !found {
			t.Errorf("active lookup during copy: found=%v err=%v", found, err)
			return
		}
		if err := led.RequestCancel(ctx, op.ID); err != nil {
			t.Errorf("RequestCancel: %v", err)
		}
	}
	exec := &fakeExec{queryFn: sim.query, rowsFn: sim.execRows}
	o := New(exec, led)

	id, err := o.Migrate(ctx, MigrateParams{
		Def:       migrateDef(),
		KeyColumn: "id",
		BatchSize: 10,
	})
	var cn *CancelledError
	if !errors.As(err, &cn) {
		t.Fatalf("error = %v, want *CancelledError", err)
	}
	if exec.executed("RENAME TABLE") {
		t.Fatalf("swap ran after cancellation")
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusCancelled || op.ErrorCode != CodeCancelled {
		t.Fatalf("record: status=%s code=%s", op.Status, op.ErrorCode)
	}
	// The committed batch survives in the counter.
	if op.RowsProcessed != 10 {
		t.Fatalf("RowsProcessed = %d, want 10", op.RowsProcessed)
	}
}

func TestMigrate_ResumeFromWatermark(t *testing.T) {
	t.Parallel()
	led := testLedger(t)
	ctx := context.Background()

	// An interrupted run left a non-terminal record, a created interim
	// table, and 10 committed rows.
	prev, err := led.Start(ctx, OpMigrate, "app.orders", "TABLE", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	led.Advance(ctx, prev, StateCopyData, map[string]any{"target_created": true})
	led.AddRows(ctx, prev, 10)

	sim := &sourceSim{total: 25, batch: 10, copied: 10}
	exec := &fakeExec{queryFn: sim.query, rowsFn: sim.execRows}
	o := New(exec, led)

	id, err := o.Migrate(ctx, MigrateParams{
		Def:       migrateDef(),
		KeyColumn: "id",
		BatchSize: 10,
		Resume:    true,
	})
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if id != prev {
		t.Fatalf("resume started a new operation: %d != %d", id, prev)
	}
	if exec.executed("CREATE TABLE") {
		t.Fatalf("resume re-created the interim table")
	}
	// The first batch of the resumed run filters above the re-derived
	// watermark.
	if !exec.executed(`WHERE "id" > 10`) {
		t.Fatalf("resumed copy did not resume from the watermark:\n%v", exec.stmts)
	}

	op := mustStatus(t, led, id)
	if op.Status != ledger.StatusCompleted {
		t.Fatalf("Status = %s", op.Status)
	}
}

func TestMigrate_ValidationGate(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{}
	led := testLedger(t)
	o := New(exec, led)
	ctx := context.Background()

	bad := migrateDef()
	bad.Columns = nil
	if _, err := o.Migrate(ctx, MigrateParams{Def: bad, KeyColumn: "id"}); err == nil {
		t.Fatalf("Migrate accepted a definition without columns")
	}

	if _, err := o.Migrate(ctx, MigrateParams{Def: migrateDef()}); err == nil {
		t.Fatalf("Migrate accepted an empty key column")
	}

	if _, found, _ := led.ActiveOperation(ctx, "app.orders"); found {
		t.Fatalf("rejected migrate left a ledger record")
	}
	if len(exec.stmts) != 0 {
		t.Fatalf("rejected migrate executed statements: %v", exec.stmts)
	}
}

func TestMigrate_CreateFailureDropsInterim(t *testing.T) {
	t.Parallel()
	exec := &fakeExec{
		queryFn: func(string) (any, error) { return int64(0), nil },
		execFn: func(stmt string) error {
			if strings.HasPrefix(stmt, "CREATE TABLE") {
				return errors.New("ORA-01658: unable to create extent")
			}
			return nil
		},
	}
	led := testLedger(t)
	o := New(exec, led)

	id, err := o.Migrate(context.Background(), MigrateParams{
		Def:       migrateDef(),
		KeyColumn: "id",
	})
	var exErr *ExecutionError
	if !errors.As(err, &exErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if !exec.executed(`DROP TABLE "app"."orders_new";`) {
		t.Fatalf("interim table not cleaned up:\n%v", exec.stmts)
	}
	if op := mustStatus(t, led, id); op.Status != ledger.StatusFailed {
		t.Fatalf("Status = %s", op.Status)
	}
}
