// Package config provides configuration models and helpers for the synthesis
// and evolution tools.
//
// This file adds a lightweight linter/validator for Profile values. It
// performs static checks over a decoded Profile and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Profile.
//
// Path is a dotted path into the config (e.g. "target.kind",
// "metrics.gateway_url"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidateProfile performs static validation / linting of a Profile.
//
// It does not mutate the profile. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	var p config.Profile
//	if err := json.NewDecoder(r).Decode(&p); err != nil { ... }
//	issues := config.ValidateProfile(p)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateProfile(p Profile) []Issue {
	var issues []Issue

	// Top-level profile checks.
	if strings.TrimSpace(p.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "name",
			Message:  "name must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateTarget(p.Target)...)
	issues = append(issues, validateLedger(p.Ledger)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateDefaults(p.Defaults)...)

	return issues
}

// validateTarget validates Target configuration.
func validateTarget(t Target) []Issue {
	var issues []Issue

	// Kind is required.
	if strings.TrimSpace(t.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "target.kind",
			Message:  "target.kind must not be empty",
		})
		return issues
	}

	// Known target kinds. Unknown kinds are warnings (for forward compatibility).
	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[t.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "target.kind",
			Message:  fmt.Sprintf("unknown target kind %q; ensure a matching backend is registered", t.Kind),
		})
	}

	if strings.TrimSpace(t.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "target.dsn",
			Message:  "target.dsn must not be empty",
		})
	}

	return issues
}

// validateLedger validates the operation ledger configuration.
func validateLedger(l Ledger) []Issue {
	var issues []Issue

	if strings.TrimSpace(l.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ledger.path",
			Message:  "ledger.path must not be empty; the evolution workflows require an operation ledger",
		})
	}
	if l.RetentionDays < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ledger.retention_days",
			Message:  "retention_days must not be negative",
		})
	}

	return issues
}

// validateMetrics validates the metrics backend selection.
func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
		// metrics disabled; nothing to check
	case "pushgateway":
		if strings.TrimSpace(m.GatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.gateway_url",
				Message:  "pushgateway backend requires a non-empty gateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires a non-empty statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}

	return issues
}

// validateDefaults validates Defaults for obvious misconfigurations
// (negative values, zero-sized batches, etc.).
func validateDefaults(d Defaults) []Issue {
	var issues []Issue

	if d.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "defaults.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if d.BatchSize > 0 && d.BatchSize < 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "defaults.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; very small batches may hurt throughput", d.BatchSize),
		})
	}
	if d.Parallel < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "defaults.parallel",
			Message:  "parallel must not be negative",
		})
	}
	if d.Checkpoint < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "defaults.checkpoint",
			Message:  "checkpoint must not be negative",
		})
	}
	if d.TimeoutSeconds < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "defaults.timeout_seconds",
			Message:  "timeout_seconds must not be negative",
		})
	}

	return issues
}
