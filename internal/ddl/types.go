// Package ddl defines the descriptor model for relational table shapes and
// renders deterministic CREATE TABLE statements (plus the ALTER statements the
// evolution workflows need) from that model.
//
// The model is a set of immutable value objects: callers construct a TableDef,
// pass it through Validate, and hand it to an Engine. The Engine never mutates
// a definition and retains no reference to it after Build returns.
//
// The rendered dialect is Oracle-flavored: VALUES LESS THAN bounds, TABLESPACE
// clauses, ORGANIZATION clauses, SET UNUSED column removal. Free-text fields
// that originate from a caller (default expressions, bound expressions, check
// expressions, comments) are treated as untrusted and must pass the Engine's
// sanitizer before they are interpolated.
package ddl

import (
	"time"
)

// ColType is the closed set of base column types the engine can render.
type ColType string

const (
	TypeNumber    ColType = "number"
	TypeInteger   ColType = "integer"
	TypeFloat     ColType = "float"
	TypeVarchar   ColType = "varchar"
	TypeChar      ColType = "char"
	TypeDate      ColType = "date"
	TypeTimestamp ColType = "timestamp"
	TypeClob      ColType = "clob"
	TypeBlob      ColType = "blob"
	TypeRaw       ColType = "raw"
	TypeJSON      ColType = "json"
)

// Column describes a single column. Length applies to varchar/char/raw,
// Precision/Scale to number/timestamp. Default is a raw SQL expression and is
// treated as untrusted input at render time.
type Column struct {
	Name      string  `json:"name"`
	Type      ColType `json:"type"`
	Length    int     `json:"length,omitempty"`
	Precision int     `json:"precision,omitempty"`
	Scale     int     `json:"scale,omitempty"`
	NotNull   bool    `json:"not_null,omitempty"`
	Default   string  `json:"default,omitempty"`
	Identity  bool    `json:"identity,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// ConstraintKind is the closed set of table constraint kinds.
type ConstraintKind string

const (
	PrimaryKey ConstraintKind = "primary"
	Unique     ConstraintKind = "unique"
	ForeignKey ConstraintKind = "foreign"
	Check      ConstraintKind = "check"
)

// Constraint describes a named table constraint. Columns must reference
// declared columns of the same table. RefTable/RefColumns are used only for
// foreign keys; Expr only for checks (untrusted).
type Constraint struct {
	Name       string         `json:"name"`
	Kind       ConstraintKind `json:"kind"`
	Columns    []string       `json:"columns,omitempty"`
	RefTable   string         `json:"ref_table,omitempty"`
	RefColumns []string       `json:"ref_columns,omitempty"`
	Expr       string         `json:"expr,omitempty"`
}

// Strategy selects how a table (or subpartition level) is partitioned.
// Composite partitioning is expressed as a range or list PartitionSpec whose
// Sub field is set; there is no separate tag for it.
type Strategy string

const (
	ByRange     Strategy = "range"
	ByList      Strategy = "list"
	ByHash      Strategy = "hash"
	ByReference Strategy = "reference"
)

// Partition describes one declared partition. For range partitions Values is
// the exclusive high bound expression (or "MAXVALUE"); for list partitions it
// is the comma-separated value list. Both are untrusted at render time.
type Partition struct {
	Name       string `json:"name"`
	Values     string `json:"values,omitempty"`
	Tablespace string `json:"tablespace,omitempty"`
}

// SubpartitionSpec describes the nested level of a composite-partitioned
// table. Hash subpartitioning uses Count; StoreIn spreads subpartitions
// round-robin across the named tablespaces and, when non-empty, its length
// must equal Count.
type SubpartitionSpec struct {
	Strategy   Strategy `json:"strategy"`
	KeyColumns []string `json:"key_columns"`
	Count      int      `json:"count,omitempty"`
	StoreIn    []string `json:"store_in,omitempty"`
}

// PartitionSpec describes the partitioning of a table. For hash partitioning
// without named partitions, HashCount and optionally StoreIn are used instead
// of Partitions. StoreIn is valid only with hash partitioning; range and list
// partitions place themselves via Partition.Tablespace. RefConstraint names
// the foreign key for reference partitioning.
type PartitionSpec struct {
	Strategy      Strategy          `json:"strategy"`
	KeyColumns    []string          `json:"key_columns,omitempty"`
	Partitions    []Partition       `json:"partitions,omitempty"`
	HashCount     int               `json:"hash_count,omitempty"`
	StoreIn       []string          `json:"store_in,omitempty"`
	RefConstraint string            `json:"ref_constraint,omitempty"`
	Sub           *SubpartitionSpec `json:"sub,omitempty"`
}

// TableKind is the closed set of table organizations the engine can render.
// Every kind has exactly one rendering rule; an unrecognized kind is a
// SynthesisError, never a silent default.
type TableKind string

const (
	KindHeap           TableKind = "heap"
	KindIndexOrganized TableKind = "index_organized"
	KindTemporary      TableKind = "temporary"
	KindAppendOnly     TableKind = "append_only"
	KindColumnar       TableKind = "columnar"
	KindSemiStructured TableKind = "semistructured"
)

// TableProps carries table-level physical properties. Zero values mean "emit
// nothing" for the corresponding clause.
type TableProps struct {
	Tablespace string `json:"tablespace,omitempty"`
	NoLogging  bool   `json:"nologging,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
	Parallel   int    `json:"parallel,omitempty"`
	InMemory   bool   `json:"inmemory,omitempty"`
	// PreserveRows selects ON COMMIT PRESERVE ROWS for temporary tables;
	// the default is ON COMMIT DELETE ROWS.
	PreserveRows bool   `json:"preserve_rows,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// TableDef is the aggregate definition consumed by the Engine. It is a value
// object: construct it, validate it, render it, never mutate it afterward.
type TableDef struct {
	Owner        string         `json:"owner,omitempty"`
	Name         string         `json:"name"`
	Kind         TableKind      `json:"kind"`
	Columns      []Column       `json:"columns"`
	Constraints  []Constraint   `json:"constraints,omitempty"`
	Partitioning *PartitionSpec `json:"partitioning,omitempty"`
	Props        TableProps     `json:"props,omitempty"`
}

// QualifiedName returns the owner-qualified, quoted table name.
func (t TableDef) QualifiedName() string {
	if t.Owner == "" {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Owner) + "." + quoteIdent(t.Name)
}

// Statement is the engine's output: rendered SQL text plus lightweight
// metadata. The caller owns the value once returned; Fingerprint is the xxh3
// hash of Text and is stable across runs for identical definitions, unlike
// GeneratedAt.
type Statement struct {
	Text        string
	Object      string
	Kind        TableKind
	GeneratedAt time.Time
	Fingerprint uint64
}
