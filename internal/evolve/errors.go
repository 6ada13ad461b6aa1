// Package evolve implements the online evolution orchestrator: multi-step
// workflows (move, migrate-and-rename, subpartition conversion, batched
// column removal) that render statement text through the ddl package, execute
// it through a storage.Executor, and record every state transition in the
// operation ledger.
//
// Each workflow is a deterministic state machine. Every non-terminal state
// has exactly one success and one failure transition; the terminal statuses
// are COMPLETED, PARTIAL_SUCCESS, FAILED, and CANCELLED, and a terminal
// ledger record is never written to again.
package evolve

import (
	"context"
	"errors"
	"fmt"
)

// Error codes recorded in the ledger's error_code column.
const (
	CodePreflight = "PREFLIGHT"
	CodeExecution = "EXECUTION"
	CodePartial   = "PARTIAL"
	CodeCancelled = "CANCELLED"
	CodeTimeout   = "TIMEOUT"
)

// PreflightError reports a feasibility check failure (missing object,
// unsupported capability, unusable connection). Preflight failures abort
// before any structural statement runs.
type PreflightError struct {
	Target string
	Reason string
	Err    error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("evolve: preflight for %s failed: %s", e.Target, e.Reason)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// ExecutionError reports a generated statement that failed when run. It
// carries the operation id under which the failure is recorded.
type ExecutionError struct {
	OpID int64
	Step string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("evolve: op=%d step=%s: %v", e.OpID, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PartialFailure reports that the primary structural change succeeded but a
// dependent step (index rebuild, stats refresh, cleanup) did not. The ledger
// records PARTIAL_SUCCESS, never plain FAILED, for these cases.
type PartialFailure struct {
	OpID int64
	Step string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("evolve: op=%d partial success, step %s failed: %v", e.OpID, e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// CancelledError reports a cooperative cancellation honored at a checkpoint.
type CancelledError struct {
	OpID int64
	Step string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("evolve: op=%d cancelled at step %s", e.OpID, e.Step)
}

// errCode maps an error to its ledger error_code.
func errCode(err error) string {
	var pf *PreflightError
	var pt *PartialFailure
	var cn *CancelledError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &cn):
		return CodeCancelled
	case errors.As(err, &pt):
		return CodePartial
	case errors.As(err, &pf):
		return CodePreflight
	}
	return CodeExecution
}
