// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the evolution workflows.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It is designed to mirror the storage abstraction pattern used elsewhere
//     in the project (e.g. storage.Executor), allowing the rest of the codebase
//     to depend only on this interface while keeping concrete metric systems
//     isolated in subpackages.
//
// The primary use case is instrumentation of the evolution state machines
// (move, migrate, convert, column removal) without coupling the orchestrator
// logic to a specific metrics system such as Prometheus.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep is a convenience for the common pattern:
// measure latency + success/failure per workflow state.
func RecordStep(operation, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"operation": operation,
		"step":      step,
		"status":    status,
	}

	backend.IncCounter("evolution_step_total", 1, lbls)
	backend.ObserveHistogram("evolution_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given operation and kind.
//
// Typical kinds mirror the ledger metrics, e.g.:
//   - "copied"
//   - "synced"
//   - "dropped"
func RecordRows(operation, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("evolution_rows_total", float64(delta), Labels{
		"operation": operation,
		"kind":      kind,
	})
}

// RecordBatches increments a batch-level counter for the given operation.
func RecordBatches(operation string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("evolution_batches_total", float64(delta), Labels{
		"operation": operation,
	})
}

// RecordStatement counts a synthesized DDL statement per object kind.
func RecordStatement(kind string) {
	backend.IncCounter("synthesis_statements_total", 1, Labels{
		"kind": kind,
	})
}
