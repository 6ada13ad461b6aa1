// The copy-swap core shared by the migrate-and-rename workflow and the
// rebuild variant of subpartition conversion:
//
//	CREATE_TARGET → COPY_DATA → VALIDATE_ROWCOUNTS → SYNC_DELTA →
//	RENAME_ATOMIC → CLEANUP → COMPLETED
//
// COPY_DATA runs in fixed-size, strictly sequential batches over a
// monotonically increasing key. The watermark is the highest key already
// committed to the interim table, so it advances atomically with each data
// write; on restart the workflow re-derives it from the interim table and
// continues without duplicating or skipping rows.
package evolve

import (
	"context"
	"fmt"
	"log"
	"time"

	"ddlforge/internal/ddl"
	"ddlforge/internal/ledger"
	"ddlforge/internal/metrics"
)

const (
	StateCreateTarget ledger.Status = "CREATE_TARGET"
	StateCopyData     ledger.Status = "COPY_DATA"
	StateValidate     ledger.Status = "VALIDATE_ROWCOUNTS"
	StateSyncDelta    ledger.Status = "SYNC_DELTA"
	StateRename       ledger.Status = "RENAME_ATOMIC"
	StateCleanup      ledger.Status = "CLEANUP"
)

// copySwapSpec parameterizes one copy-swap run. The interim and retired
// names are deterministic so a resumed run finds the same objects.
type copySwapSpec struct {
	opType     string
	owner      string
	source     string
	interim    string
	retired    string
	createStmt string
	columns    []string
	key        string
	batchSize  int
	parallel   int
	// skipCreate is set when resuming an interrupted run whose ledger
	// context records that the interim table already exists.
	skipCreate bool
}

// runCopySwap drives the state machine for an already-started operation id.
// It returns the rows copied in this run; the caller writes the terminal
// record on success.
func (o *Orchestrator) runCopySwap(ctx context.Context, id int64, sp copySwapSpec) (int64, error) {
	if !sp.skipCreate {
		err := o.step(ctx, id, sp.opType, StateCreateTarget, func() error {
			return o.exec.Exec(ctx, sp.createStmt)
		})
		if err != nil {
			return 0, o.failCopySwap(ctx, id, sp, &ExecutionError{OpID: id, Step: string(StateCreateTarget), Err: err})
		}
		o.led.Advance(ctx, id, StateCreateTarget, map[string]any{"interim": sp.interim, "target_created": true})
	}

	total, err := o.copyBatches(ctx, id, sp)
	if err != nil {
		return total, o.failCopySwap(ctx, id, sp, err)
	}

	err = o.step(ctx, id, sp.opType, StateValidate, func() error {
		srcN, err := o.countRows(ctx, sp.owner, sp.source)
		if err != nil {
			return err
		}
		dstN, err := o.countRows(ctx, sp.owner, sp.interim)
		if err != nil {
			return err
		}
		if srcN != dstN {
			return fmt.Errorf("rowcount mismatch: source=%d target=%d", srcN, dstN)
		}
		return nil
	})
	if err != nil {
		return total, o.failCopySwap(ctx, id, sp, &ExecutionError{OpID: id, Step: string(StateValidate), Err: err})
	}

	var delta int64
	err = o.step(ctx, id, sp.opType, StateSyncDelta, func() error {
		wm, err := o.maxKey(ctx, sp.owner, sp.interim, sp.key)
		if err != nil {
			return err
		}
		stmt, err := ddl.SyncDelta(sp.owner, sp.source, sp.interim, sp.columns, sp.key, wm)
		if err != nil {
			return err
		}
		n, err := o.exec.ExecRows(ctx, stmt)
		delta = n
		return err
	})
	if err != nil {
		return total, o.failCopySwap(ctx, id, sp, &ExecutionError{OpID: id, Step: string(StateSyncDelta), Err: err})
	}
	total += delta
	o.led.AddRows(ctx, id, delta)
	metrics.RecordRows(sp.opType, "synced", delta)

	if err := o.checkpoint(ctx, id, string(StateRename)); err != nil {
		return total, o.finishErr(ctx, id, err)
	}

	err = o.step(ctx, id, sp.opType, StateRename, func() error {
		return o.renamePair(ctx, sp)
	})
	if err != nil {
		return total, o.finishErr(ctx, id, &ExecutionError{OpID: id, Step: string(StateRename), Err: err})
	}

	// The swap has succeeded; a cleanup failure downgrades to
	// PARTIAL_SUCCESS rather than FAILED.
	err = o.step(ctx, id, sp.opType, StateCleanup, func() error {
		stmt, err := ddl.DropTable(sp.owner, sp.retired)
		if err != nil {
			return err
		}
		return o.exec.Exec(ctx, stmt)
	})
	if err != nil {
		return total, o.finishErr(ctx, id, &PartialFailure{OpID: id, Step: string(StateCleanup), Err: err})
	}
	return total, nil
}

// copyBatches runs the COPY_DATA loop. Cancellation is evaluated between
// batches only; every committed batch is reflected in rows_processed and the
// recorded watermark before the next batch starts.
func (o *Orchestrator) copyBatches(ctx context.Context, id int64, sp copySwapSpec) (int64, error) {
	o.led.Advance(ctx, id, StateCopyData, nil)

	wm, err := o.maxKey(ctx, sp.owner, sp.interim, sp.key)
	if err != nil {
		return 0, &ExecutionError{OpID: id, Step: string(StateCopyData), Err: err}
	}
	if wm != nil {
		log.Printf("evolve: %s op=%d resuming copy watermark=%v", sp.opType, id, wm)
	}

	var (
		total   int64
		batches int64
		start   = time.Now()
	)
	for {
		if err := o.checkpoint(ctx, id, string(StateCopyData)); err != nil {
			return total, err
		}

		stmt, err := ddl.CopyBatch(sp.owner, sp.source, sp.interim, sp.columns, sp.key, wm, sp.batchSize, sp.parallel)
		if err != nil {
			return total, &ExecutionError{OpID: id, Step: string(StateCopyData), Err: err}
		}
		stepStart := time.Now()
		n, err := o.exec.ExecRows(ctx, stmt)
		if err != nil {
			return total, &ExecutionError{OpID: id, Step: string(StateCopyData), Err: err}
		}
		if n == 0 {
			break
		}

		// The batch is committed; derive the new watermark from the data
		// itself so the two can never disagree.
		wm, err = o.maxKey(ctx, sp.owner, sp.interim, sp.key)
		if err != nil {
			return total, &ExecutionError{OpID: id, Step: string(StateCopyData), Err: err}
		}
		total += n
		batches++
		o.led.AddRows(ctx, id, n)
		metrics.RecordRows(sp.opType, "copied", n)
		metrics.RecordBatches(sp.opType, 1)
		o.led.Advance(ctx, id, StateCopyData, map[string]any{"watermark": fmt.Sprintf("%v", wm)})

		elapsed := time.Since(stepStart)
		rps := float64(0)
		if elapsed > 0 {
			rps = float64(n) / elapsed.Seconds()
		}
		log.Printf("evolve: %s op=%d batch #%d rows=%d total=%d rps=%.0f elapsed=%s",
			sp.opType, id, batches, n, total, rps, time.Since(start).Truncate(time.Millisecond))

		if n < int64(sp.batchSize) {
			break
		}
	}
	return total, nil
}

// renamePair swaps the source and interim identities. The pair is issued
// back to back; if binding the interim to the source name fails after the
// source was renamed away, the first rename is rolled back so a name always
// resolves.
func (o *Orchestrator) renamePair(ctx context.Context, sp copySwapSpec) error {
	out, err := ddl.RenameTable(sp.owner, sp.source, sp.retired)
	if err != nil {
		return err
	}
	in, err := ddl.RenameTable(sp.owner, sp.interim, sp.source)
	if err != nil {
		return err
	}
	if err := o.exec.Exec(ctx, out); err != nil {
		return err
	}
	if err := o.exec.Exec(ctx, in); err != nil {
		back, backErr := ddl.RenameTable(sp.owner, sp.retired, sp.source)
		if backErr == nil {
			if rbErr := o.exec.Exec(ctx, back); rbErr != nil {
				log.Printf("evolve: rename rollback failed target=%s err=%v", sp.source, rbErr)
			}
		}
		return err
	}
	return nil
}

// failCopySwap records the terminal status for err and, for execution
// failures before the swap, best-effort drops the partially built interim
// table. A cleanup failure never masks the original error.
func (o *Orchestrator) failCopySwap(ctx context.Context, id int64, sp copySwapSpec, err error) error {
	if code := errCode(err); code == CodeExecution {
		if stmt, dErr := ddl.DropTable(sp.owner, sp.interim); dErr == nil {
			if dropErr := o.exec.Exec(ctx, stmt); dropErr != nil {
				log.Printf("evolve: op=%d interim cleanup failed table=%s err=%v", id, sp.interim, dropErr)
			}
		}
	}
	return o.finishErr(ctx, id, err)
}

func (o *Orchestrator) countRows(ctx context.Context, owner, table string) (int64, error) {
	q, err := ddl.CountRows(owner, table)
	if err != nil {
		return 0, err
	}
	v, err := o.exec.QueryValue(ctx, q)
	if err != nil {
		return 0, err
	}
	return toInt64(v), nil
}

// maxKey returns the highest committed key in a table, nil when the table is
// empty.
func (o *Orchestrator) maxKey(ctx context.Context, owner, table, key string) (any, error) {
	q, err := ddl.MaxKey(owner, table, key)
	if err != nil {
		return nil, err
	}
	v, err := o.exec.QueryValue(ctx, q)
	if err != nil {
		return nil, err
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}
