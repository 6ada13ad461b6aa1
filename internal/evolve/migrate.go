package evolve

import (
	"context"
	"fmt"
	"time"

	"ddlforge/internal/ddl"
	"ddlforge/internal/ledger"
)

// MigrateParams configures a parallel migrate-and-rename: rebuild a table
// under a new physical shape by copying into an interim table and swapping
// names.
type MigrateParams struct {
	// Def is the descriptor of the desired target shape, reflected from
	// the running schema by the caller and adjusted as needed (new
	// tablespace, compression, partitioning). Def.Name must be the name of
	// the live source table.
	Def ddl.TableDef
	// KeyColumn is the monotonically increasing copy key the batched copy
	// paginates over.
	KeyColumn string
	BatchSize int
	Parallel  int
	// Resume adopts an interrupted migration of the same target instead of
	// failing with an active-operation error: the copy continues from the
	// last committed watermark.
	Resume  bool
	Timeout time.Duration
}

// Migrate runs the parallel migrate-and-rename workflow:
//
//	CREATE_TARGET → COPY_DATA → VALIDATE_ROWCOUNTS → SYNC_DELTA →
//	RENAME_ATOMIC → CLEANUP → COMPLETED
//
// Interrupted runs leave a non-terminal ledger record; calling Migrate again
// with Resume set picks the record up and continues from the last committed
// watermark, with no duplicated and no skipped rows.
func (o *Orchestrator) Migrate(ctx context.Context, p MigrateParams) (int64, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()

	if issues := ddl.Validate(p.Def); len(issues) > 0 {
		for _, iss := range issues {
			if iss.Severity == ddl.SeverityError {
				return 0, &ddl.ValidationError{Object: p.Def.Name, Issues: issues}
			}
		}
	}
	if p.KeyColumn == "" {
		return 0, fmt.Errorf("evolve: migrate requires a key column")
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 10000
	}

	source := p.Def.Name
	target := qualifiedTarget(p.Def.Owner, source)
	interim := ddl.InterimName(source, "_new")
	retired := ddl.InterimName(source, "_old")

	id, skipCreate, err := o.adoptOrStart(ctx, target, p)
	if err != nil {
		return 0, err
	}

	if !skipCreate {
		err = o.step(ctx, id, OpMigrate, StatePreflight, func() error {
			_, err := o.preflight(ctx, p.Def.Owner, source)
			return err
		})
		if err != nil {
			return id, o.finishErr(ctx, id, err)
		}
	}

	st, err := o.engine.BuildClone(p.Def, interim, false)
	if err != nil {
		return id, o.finishErr(ctx, id, err)
	}

	cols := make([]string, len(p.Def.Columns))
	for i, c := range p.Def.Columns {
		cols[i] = c.Name
	}

	total, err := o.runCopySwap(ctx, id, copySwapSpec{
		opType:     OpMigrate,
		owner:      p.Def.Owner,
		source:     source,
		interim:    interim,
		retired:    retired,
		createStmt: st.Text,
		columns:    cols,
		key:        p.KeyColumn,
		batchSize:  p.BatchSize,
		parallel:   p.Parallel,
		skipCreate: skipCreate,
	})
	if err != nil {
		return id, err
	}

	o.led.Finish(ctx, id, ledger.StatusCompleted, "", "", ledger.Metrics{Rows: total, Objects: 1})
	return id, nil
}

// adoptOrStart either starts a fresh ledger record or, when resuming, adopts
// the existing non-terminal record for the target. It reports whether the
// interim table was already created by the interrupted run.
func (o *Orchestrator) adoptOrStart(ctx context.Context, target string, p MigrateParams) (int64, bool, error) {
	if p.Resume {
		op, found, err := o.led.ActiveOperation(ctx, target)
		if err != nil {
			return 0, false, err
		}
		if found {
			if op.Type != OpMigrate {
				return 0, false, fmt.Errorf("evolve: active operation on %s is %s, not a migration", target, op.Type)
			}
			created, _ := op.Context["target_created"].(bool)
			return op.ID, created, nil
		}
	}
	id, err := o.led.Start(ctx, OpMigrate, target, "TABLE", map[string]any{
		"key_column": p.KeyColumn,
		"batch_size": p.BatchSize,
		"parallel":   p.Parallel,
	})
	return id, false, err
}
