// Package config defines the canonical, JSON-serializable configuration model
// for the synthesis and evolution tools. It is intentionally small, explicit,
// and dependency-free so that profiles can be loaded from disk (or other
// sources) and passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in profile
//     files under configs/profiles/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "name":    "nightly-reorg",
//	  "target":  { "kind": "postgres", "dsn": "postgresql://...", "owner": "app" },
//	  "ledger":  { "path": "ops.db", "retention_days": 90 },
//	  "metrics": { "backend": "pushgateway", "gateway_url": "http://pushgateway:9091" },
//	  "defaults":{ "batch_size": 10000, "parallel": 4 }
//	}
package config

import "encoding/json"

// Profile describes one evolution target in JSON. It is the top-level object
// decoded from a profile file (e.g., configs/profiles/*.json).
type Profile struct {
	// Name identifies the profile. It is used for metrics labeling and as the
	// Pushgateway job grouping key.
	Name string `json:"name"`

	// Target describes the database the workflows run against.
	Target Target `json:"target"`

	// Ledger configures the local operation ledger.
	Ledger Ledger `json:"ledger"`

	// Metrics selects and configures the metrics backend.
	Metrics Metrics `json:"metrics"`

	// Defaults supplies fallback values for per-operation parameters.
	Defaults Defaults `json:"defaults"`
}

// Target identifies the database the evolution workflows execute against.
type Target struct {
	// Kind selects the storage backend. Current values: "postgres", "mysql",
	// "mssql", "sqlite".
	Kind string `json:"kind"`

	// DSN is the connection string understood by the selected backend.
	DSN string `json:"dsn"`

	// Owner is the default schema or owner qualifying object names. Leave
	// empty to use the connection's current schema.
	Owner string `json:"owner"`
}

// Ledger configures the operation ledger database.
type Ledger struct {
	// Path is the local filesystem path to the ledger database file.
	Path string `json:"path"`

	// RetentionDays bounds how long terminal records are kept before a sweep
	// removes them. Zero disables sweeping.
	RetentionDays int `json:"retention_days"`
}

// Metrics selects the metrics backend used for workflow instrumentation.
type Metrics struct {
	// Backend selects the implementation: "pushgateway", "datadog", or
	// "none"/"" to disable metrics.
	Backend string `json:"backend"`

	// GatewayURL is the Pushgateway base URL for the "pushgateway" backend.
	GatewayURL string `json:"gateway_url"`

	// StatsdAddr is the DogStatsD address for the "datadog" backend.
	StatsdAddr string `json:"statsd_addr"`
}

// Defaults holds fallback values applied when an operation does not set its
// own parameters.
type Defaults struct {
	// BatchSize bounds the rows copied per batch in data-moving workflows.
	BatchSize int `json:"batch_size"`

	// Parallel is the degree of parallelism requested from the database.
	Parallel int `json:"parallel"`

	// Checkpoint bounds the work per batch in the column-removal workflow.
	Checkpoint int `json:"checkpoint"`

	// TimeoutSeconds bounds a whole operation. Zero means no deadline.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
//
// Options is used for operation-specific parameters whose shape varies by
// workflow (e.g. the partitioning spec of a conversion).
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key (which may itself be a nested
// map[string]any, []any, or primitive). This is useful for retrieving nested
// configuration blocks that will be unmarshaled into a typed struct by the
// caller (e.g., an inline table definition).
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null options
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
