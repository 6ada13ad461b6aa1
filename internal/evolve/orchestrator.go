package evolve

import (
	"context"
	"fmt"
	"log"
	"time"

	"ddlforge/internal/ddl"
	"ddlforge/internal/ledger"
	"ddlforge/internal/metrics"
	"ddlforge/internal/storage"
)

// Operation type tags recorded in the ledger.
const (
	OpMove       = "MOVE"
	OpMigrate    = "MIGRATE"
	OpConvert    = "CONVERT_SUBPARTITION"
	OpRemoveCols = "REMOVE_COLUMNS"
	OpExecute    = "EXECUTE_DDL"
)

// StatsAdvisor is the seam to the external statistics strategy advisor,
// consulted after structural changes. The default implementation issues a
// plain gather call; deployments with a policy advisor plug their own in.
type StatsAdvisor interface {
	Refresh(ctx context.Context, exec storage.Executor, owner, table string) error
}

// GatherStatsAdvisor is the default StatsAdvisor.
type GatherStatsAdvisor struct{}

func (GatherStatsAdvisor) Refresh(ctx context.Context, exec storage.Executor, owner, table string) error {
	stmt, err := ddl.GatherStats(owner, table)
	if err != nil {
		return err
	}
	return exec.Exec(ctx, stmt)
}

// Orchestrator drives the evolution workflows. Each workflow call runs
// synchronously on the caller's goroutine; concurrency inside a statement
// comes from the statement's own parallel degree.
type Orchestrator struct {
	exec   storage.Executor
	led    *ledger.Ledger
	engine *ddl.Engine
	stats  StatsAdvisor
}

// New constructs an Orchestrator with the default engine and stats advisor.
func New(exec storage.Executor, led *ledger.Ledger) *Orchestrator {
	return &Orchestrator{
		exec:   exec,
		led:    led,
		engine: ddl.NewEngine(),
		stats:  GatherStatsAdvisor{},
	}
}

// WithStats replaces the stats advisor seam.
func (o *Orchestrator) WithStats(s StatsAdvisor) *Orchestrator {
	o.stats = s
	return o
}

// Cancel sets the cooperative cancellation flag for an operation. The
// workflow honors it at its next checkpoint, never mid-statement.
func (o *Orchestrator) Cancel(ctx context.Context, id int64) error {
	return o.led.RequestCancel(ctx, id)
}

// ExecuteDDL runs already-generated statement text against the executor
// under a ledger record and returns the operation id. Syntax is checked
// before anything is recorded.
func (o *Orchestrator) ExecuteDDL(ctx context.Context, target, text string) (int64, error) {
	if !ddl.ValidateSyntax(text) {
		return 0, fmt.Errorf("evolve: statement text failed the syntax check")
	}
	id, err := o.led.Start(ctx, OpExecute, target, "", nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	err = o.exec.Exec(ctx, text)
	metrics.RecordStep(OpExecute, "EXECUTING", err, time.Since(start))
	if err != nil {
		exErr := &ExecutionError{OpID: id, Step: "EXECUTING", Err: err}
		o.led.Finish(ctx, id, ledger.StatusFailed, CodeExecution, exErr.Error(), ledger.Metrics{})
		return id, exErr
	}
	o.led.Finish(ctx, id, ledger.StatusCompleted, "", "", ledger.Metrics{Objects: 1})
	return id, nil
}

// withTimeout applies the optional per-operation timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// checkpoint consults the cooperative cancellation flag and the context.
// It is called between batches and steps, never inside one.
func (o *Orchestrator) checkpoint(ctx context.Context, id int64, step string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.led.CancelRequested(ctx, id) {
		return &CancelledError{OpID: id, Step: step}
	}
	return nil
}

// step advances the ledger to the named state, runs fn, and records the step
// metric. The returned error is fn's error untouched.
func (o *Orchestrator) step(ctx context.Context, id int64, opType string, state ledger.Status, fn func() error) error {
	o.led.Advance(ctx, id, state, nil)
	start := time.Now()
	err := fn()
	metrics.RecordStep(opType, string(state), err, time.Since(start))
	if err != nil {
		log.Printf("evolve: op=%d step=%s failed err=%v", id, state, err)
	}
	return err
}

// finishErr writes the terminal record for err and wraps it with the
// operation id when it is not already a taxonomy error.
func (o *Orchestrator) finishErr(ctx context.Context, id int64, err error) error {
	code := errCode(err)
	var status ledger.Status
	switch code {
	case CodeCancelled:
		status = ledger.StatusCancelled
	case CodePartial:
		status = ledger.StatusPartialSuccess
	default:
		status = ledger.StatusFailed
	}
	o.led.Finish(ctx, id, status, code, err.Error(), ledger.Metrics{})
	return err
}

// preflight verifies the executor is usable and the target object exists,
// returning its current row count. The check is an advisory read: it can
// pass and the later structural statement can still fail.
func (o *Orchestrator) preflight(ctx context.Context, owner, table string) (int64, error) {
	target := qualifiedTarget(owner, table)
	if err := o.exec.Ping(ctx); err != nil {
		return 0, &PreflightError{Target: target, Reason: "connection unusable", Err: err}
	}
	q, err := ddl.CountRows(owner, table)
	if err != nil {
		return 0, &PreflightError{Target: target, Reason: "bad identifier", Err: err}
	}
	v, err := o.exec.QueryValue(ctx, q)
	if err != nil {
		return 0, &PreflightError{Target: target, Reason: "target not readable", Err: err}
	}
	return toInt64(v), nil
}

// qualifiedTarget is the ledger's target_object key for an owner and table.
func qualifiedTarget(owner, table string) string {
	if owner == "" {
		return table
	}
	return owner + "." + table
}

// toInt64 normalizes the scan types different drivers hand back for COUNT
// and MAX queries.
func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case []byte:
		var n int64
		fmt.Sscanf(string(x), "%d", &n)
		return n
	case string:
		var n int64
		fmt.Sscanf(x, "%d", &n)
		return n
	}
	return 0
}
