package evolve

import (
	"context"
	"fmt"
	"time"

	"ddlforge/internal/ddl"
	"ddlforge/internal/ledger"
	"ddlforge/internal/metrics"
)

// Column-removal states.
const (
	StateSnapshot       ledger.Status = "SNAPSHOT_METADATA"
	StateDisableCons    ledger.Status = "DISABLE_DEPENDENT_CONSTRAINTS"
	StateMarkUnused     ledger.Status = "MARK_COLUMN_UNUSED"
	StatePhysicalDrop   ledger.Status = "BATCHED_PHYSICAL_DROP"
	StateRebuildIndexes ledger.Status = "REBUILD_DEPENDENT_INDEXES"
	StateEnableCons     ledger.Status = "RE_ENABLE_CONSTRAINTS"
)

// RemoveColumnsParams configures a safe, batched column removal.
type RemoveColumnsParams struct {
	Owner   string
	Table   string
	Columns []string
	// DependentConstraints are disabled before the drop and re-enabled
	// after; constraints not listed here stay enabled throughout.
	DependentConstraints []string
	// DependentIndexes are rebuilt after the physical drop.
	DependentIndexes []string
	// Checkpoint bounds the work per physical-drop batch.
	Checkpoint int
	Parallel   int
	Timeout    time.Duration
}

// RemoveColumns removes columns without blocking concurrent DML:
//
//	SNAPSHOT_METADATA → DISABLE_DEPENDENT_CONSTRAINTS → MARK_COLUMN_UNUSED →
//	BATCHED_PHYSICAL_DROP → REBUILD_DEPENDENT_INDEXES →
//	RE_ENABLE_CONSTRAINTS → COMPLETED
//
// The columns are first marked unused, which makes them invisible to readers
// and writers immediately; the physical rewrite then proceeds in checkpointed
// batches with cancellation evaluated between batches. Once the physical
// drop has run, a failure in the index or constraint steps is recorded as
// PARTIAL_SUCCESS.
func (o *Orchestrator) RemoveColumns(ctx context.Context, p RemoveColumnsParams) (int64, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()

	if len(p.Columns) == 0 {
		return 0, fmt.Errorf("evolve: remove columns requires at least one column")
	}
	if p.Checkpoint <= 0 {
		p.Checkpoint = 25000
	}

	target := qualifiedTarget(p.Owner, p.Table)
	id, err := o.led.Start(ctx, OpRemoveCols, target, "TABLE", map[string]any{
		"columns":    p.Columns,
		"checkpoint": p.Checkpoint,
	})
	if err != nil {
		return 0, err
	}

	var rows int64
	err = o.step(ctx, id, OpRemoveCols, StateSnapshot, func() error {
		n, err := o.preflight(ctx, p.Owner, p.Table)
		rows = n
		return err
	})
	if err != nil {
		return id, o.finishErr(ctx, id, err)
	}
	o.led.Advance(ctx, id, StateSnapshot, map[string]any{
		"constraints": p.DependentConstraints,
		"indexes":     p.DependentIndexes,
		"row_count":   rows,
	})

	err = o.step(ctx, id, OpRemoveCols, StateDisableCons, func() error {
		for _, cons := range p.DependentConstraints {
			stmt, err := ddl.DisableConstraint(p.Owner, p.Table, cons)
			if err != nil {
				return err
			}
			if err := o.exec.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return id, o.finishErr(ctx, id, &ExecutionError{OpID: id, Step: string(StateDisableCons), Err: err})
	}

	err = o.step(ctx, id, OpRemoveCols, StateMarkUnused, func() error {
		stmt, err := ddl.SetColumnsUnused(p.Owner, p.Table, p.Columns)
		if err != nil {
			return err
		}
		return o.exec.Exec(ctx, stmt)
	})
	if err != nil {
		return id, o.finishErr(ctx, id, &ExecutionError{OpID: id, Step: string(StateMarkUnused), Err: err})
	}

	if err := o.dropBatches(ctx, id, p); err != nil {
		return id, o.finishErr(ctx, id, err)
	}

	// The physical drop is done; remaining steps only restore dependents,
	// so their failure downgrades to PARTIAL_SUCCESS.
	err = o.step(ctx, id, OpRemoveCols, StateRebuildIndexes, func() error {
		for _, idx := range p.DependentIndexes {
			stmt, err := ddl.RebuildIndex(p.Owner, idx, "", p.Parallel)
			if err != nil {
				return err
			}
			if err := o.exec.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return id, o.finishErr(ctx, id, &PartialFailure{OpID: id, Step: string(StateRebuildIndexes), Err: err})
	}

	err = o.step(ctx, id, OpRemoveCols, StateEnableCons, func() error {
		for _, cons := range p.DependentConstraints {
			stmt, err := ddl.EnableConstraint(p.Owner, p.Table, cons)
			if err != nil {
				return err
			}
			if err := o.exec.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return id, o.finishErr(ctx, id, &PartialFailure{OpID: id, Step: string(StateEnableCons), Err: err})
	}

	o.led.Finish(ctx, id, ledger.StatusCompleted, "", "", ledger.Metrics{
		Objects: int64(len(p.Columns)),
	})
	return id, nil
}

// dropBatches runs the physical removal in checkpointed slices: the first
// batch issues the drop with a checkpoint bound, every further batch resumes
// it, and the loop ends when a batch reports no remaining work. Cancellation
// is evaluated between batches.
func (o *Orchestrator) dropBatches(ctx context.Context, id int64, p RemoveColumnsParams) error {
	o.led.Advance(ctx, id, StatePhysicalDrop, nil)

	first := true
	for {
		if err := o.checkpoint(ctx, id, string(StatePhysicalDrop)); err != nil {
			return err
		}
		var stmt string
		var err error
		if first {
			stmt, err = ddl.DropUnusedColumns(p.Owner, p.Table, p.Checkpoint, p.Parallel)
		} else {
			stmt, err = ddl.ContinueDropColumns(p.Owner, p.Table, p.Checkpoint)
		}
		if err != nil {
			return &ExecutionError{OpID: id, Step: string(StatePhysicalDrop), Err: err}
		}
		n, err := o.exec.ExecRows(ctx, stmt)
		if err != nil {
			return &ExecutionError{OpID: id, Step: string(StatePhysicalDrop), Err: err}
		}
		o.led.AddRows(ctx, id, n)
		metrics.RecordRows(OpRemoveCols, "dropped", n)
		if n == 0 {
			return nil
		}
		first = false
	}
}
