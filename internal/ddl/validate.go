// This file implements the descriptor validator. It performs static checks
// over a TableDef and returns a list of issues; the synthesis engine refuses
// to render a definition that has error-severity issues.
package ddl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a descriptor issue.
type IssueSeverity string

const (
	// SeverityError indicates a descriptor error that blocks synthesis.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding surfaced to users that does not
	// block synthesis.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a table definition.
//
// Path is a dotted path into the definition (e.g. "columns[2].name",
// "partitioning.partitions[0]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidationError aggregates every error-severity issue found in a
// definition. It carries the full list, not just the first.
type ValidationError struct {
	Object string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ddl: definition of %s has %d validation issue(s); first: %s",
		e.Object, len(e.Issues), e.Issues[0].Message)
}

// errorIssues filters issues down to error severity.
func errorIssues(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Validate performs static validation of a table definition. It does not
// mutate the definition; it returns a slice of Issue values covering every
// violation found, in definition order.
func Validate(t TableDef) []Issue {
	var issues []Issue

	fail := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	}
	warn := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: msg})
	}

	if p := checkIdent(t.Name); p != "" {
		fail("name", p)
	}
	if t.Owner != "" {
		if p := checkIdent(t.Owner); p != "" {
			fail("owner", p)
		}
	}
	if len(t.Columns) == 0 {
		fail("columns", "at least one column is required")
	}

	// Column checks + duplicate detection (case-insensitive, like the target
	// dialect's catalog).
	colSet := map[string]struct{}{}
	jsonCols := 0
	for i, c := range t.Columns {
		path := fmt.Sprintf("columns[%d]", i)
		if p := checkIdent(c.Name); p != "" {
			fail(path+".name", p)
		}
		key := strings.ToUpper(c.Name)
		if _, dup := colSet[key]; dup {
			fail(path+".name", fmt.Sprintf("duplicate column name %q", c.Name))
		}
		colSet[key] = struct{}{}

		issues = append(issues, validateColumnType(path, c)...)
		if c.Type == TypeJSON {
			jsonCols++
		}
		if c.Identity && c.Default != "" {
			fail(path, "identity columns cannot carry a default expression")
		}
	}

	// Constraint checks.
	conSet := map[string]struct{}{}
	for i, cn := range t.Constraints {
		path := fmt.Sprintf("constraints[%d]", i)
		if p := checkIdent(cn.Name); p != "" {
			fail(path+".name", p)
		}
		key := strings.ToUpper(cn.Name)
		if _, dup := conSet[key]; dup {
			fail(path+".name", fmt.Sprintf("duplicate constraint name %q", cn.Name))
		}
		conSet[key] = struct{}{}

		switch cn.Kind {
		case PrimaryKey, Unique:
			if len(cn.Columns) == 0 {
				fail(path+".columns", string(cn.Kind)+" constraint requires at least one column")
			}
		case ForeignKey:
			if len(cn.Columns) == 0 {
				fail(path+".columns", "foreign key requires at least one column")
			}
			if cn.RefTable == "" {
				fail(path+".ref_table", "foreign key requires a referenced table")
			}
			if len(cn.RefColumns) != 0 && len(cn.RefColumns) != len(cn.Columns) {
				fail(path+".ref_columns", "referenced column count must match constraint column count")
			}
		case Check:
			if strings.TrimSpace(cn.Expr) == "" {
				fail(path+".expr", "check constraint requires an expression")
			}
		default:
			fail(path+".kind", fmt.Sprintf("unknown constraint kind %q", cn.Kind))
		}
		for j, col := range cn.Columns {
			if _, ok := colSet[strings.ToUpper(col)]; !ok {
				fail(fmt.Sprintf("%s.columns[%d]", path, j),
					fmt.Sprintf("constraint %s references undeclared column %q", cn.Name, col))
			}
		}
	}

	// Kind legality matrix.
	switch t.Kind {
	case KindHeap, KindAppendOnly, KindColumnar:
	case KindIndexOrganized:
		if !hasConstraint(t.Constraints, PrimaryKey) {
			fail("kind", "index-organized tables require a primary key")
		}
		if t.Props.InMemory {
			fail("props.inmemory", "index-organized tables do not support the in-memory option")
		}
	case KindTemporary:
		if t.Props.Tablespace != "" {
			fail("props.tablespace", "temporary tables do not take a tablespace")
		}
		if t.Partitioning != nil {
			fail("partitioning", "temporary tables cannot be partitioned")
		}
	case KindSemiStructured:
		if jsonCols != 1 {
			fail("columns", fmt.Sprintf("semi-structured tables require exactly one json column, found %d", jsonCols))
		}
	default:
		fail("kind", fmt.Sprintf("unknown table kind %q", t.Kind))
	}

	if t.Partitioning != nil {
		issues = append(issues, validatePartitioning(t, colSet, conSet)...)
	}

	if t.Props.Parallel < 0 {
		fail("props.parallel", "parallel degree must not be negative")
	}
	if t.Props.PreserveRows && t.Kind != KindTemporary {
		warn("props.preserve_rows", "preserve_rows only applies to temporary tables")
	}

	return issues
}

// validateColumnType checks the length/precision/scale shape for a column's
// base type.
func validateColumnType(path string, c Column) []Issue {
	var issues []Issue
	fail := func(p, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: p, Message: msg})
	}
	switch c.Type {
	case TypeVarchar, TypeChar, TypeRaw:
		if c.Length <= 0 {
			fail(path+".length", fmt.Sprintf("%s columns require a positive length", c.Type))
		}
	case TypeNumber:
		if c.Scale != 0 && c.Precision == 0 {
			fail(path+".scale", "number scale requires a precision")
		}
		if c.Precision < 0 || c.Precision > 38 {
			if c.Precision != 0 {
				fail(path+".precision", "number precision must be between 1 and 38")
			}
		}
	case TypeTimestamp:
		if c.Precision < 0 || c.Precision > 9 {
			fail(path+".precision", "timestamp precision must be between 0 and 9")
		}
	case TypeInteger, TypeFloat, TypeDate, TypeClob, TypeBlob, TypeJSON:
		if c.Length != 0 {
			fail(path+".length", fmt.Sprintf("%s columns do not take a length", c.Type))
		}
	default:
		fail(path+".type", fmt.Sprintf("unknown column type %q", c.Type))
	}
	return issues
}

// validatePartitioning checks the partition spec against the declared columns
// and constraints: key columns must exist, range bounds must be strictly
// increasing in declaration order, and round-robin tablespace lists must be
// consistent with the partition/subpartition count.
func validatePartitioning(t TableDef, colSet, conSet map[string]struct{}) []Issue {
	var issues []Issue
	fail := func(p, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: p, Message: msg})
	}

	ps := t.Partitioning
	switch ps.Strategy {
	case ByRange, ByList, ByHash:
		if len(ps.KeyColumns) == 0 {
			fail("partitioning.key_columns", "partitioning requires at least one key column")
		}
	case ByReference:
		if ps.RefConstraint == "" {
			fail("partitioning.ref_constraint", "reference partitioning requires a foreign key constraint name")
		} else if _, ok := conSet[strings.ToUpper(ps.RefConstraint)]; !ok {
			fail("partitioning.ref_constraint",
				fmt.Sprintf("reference partitioning names undeclared constraint %q", ps.RefConstraint))
		}
	default:
		fail("partitioning.strategy", fmt.Sprintf("unknown partition strategy %q", ps.Strategy))
	}

	for i, col := range ps.KeyColumns {
		if _, ok := colSet[strings.ToUpper(col)]; !ok {
			fail(fmt.Sprintf("partitioning.key_columns[%d]", i),
				fmt.Sprintf("partition key references undeclared column %q", col))
		}
	}

	partSet := map[string]struct{}{}
	for i, p := range ps.Partitions {
		path := fmt.Sprintf("partitioning.partitions[%d]", i)
		if prob := checkIdent(p.Name); prob != "" {
			fail(path+".name", prob)
		}
		key := strings.ToUpper(p.Name)
		if _, dup := partSet[key]; dup {
			fail(path+".name", fmt.Sprintf("duplicate partition name %q", p.Name))
		}
		partSet[key] = struct{}{}
		if ps.Strategy == ByRange || ps.Strategy == ByList {
			if strings.TrimSpace(p.Values) == "" {
				fail(path+".values", "partition requires a bound expression")
			}
		}
	}

	if ps.Strategy == ByRange {
		issues = append(issues, checkRangeBounds(ps.Partitions)...)
	}

	if ps.Strategy != ByHash && len(ps.StoreIn) > 0 {
		fail("partitioning.store_in",
			fmt.Sprintf("store_in applies only to hash partitioning, not %q; use per-partition tablespaces", ps.Strategy))
	}

	if ps.Strategy == ByHash {
		if len(ps.Partitions) == 0 && ps.HashCount <= 0 {
			fail("partitioning.hash_count", "hash partitioning requires named partitions or a positive count")
		}
		if len(ps.StoreIn) > 0 {
			n := ps.HashCount
			if n == 0 {
				n = len(ps.Partitions)
			}
			if len(ps.StoreIn) != n {
				fail("partitioning.store_in",
					fmt.Sprintf("store_in lists %d tablespaces for %d partitions", len(ps.StoreIn), n))
			}
		}
	}

	if ps.Sub != nil {
		if ps.Strategy != ByRange && ps.Strategy != ByList {
			fail("partitioning.sub", "subpartitioning requires range or list partitioning at the top level")
		}
		issues = append(issues, validateSubSpec("partitioning.sub", ps.Sub, colSet)...)
	}

	return issues
}

// validateSubSpec checks a subpartition spec; shared with the
// subpartition-addition script generator.
func validateSubSpec(path string, sub *SubpartitionSpec, colSet map[string]struct{}) []Issue {
	var issues []Issue
	fail := func(p, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: p, Message: msg})
	}
	switch sub.Strategy {
	case ByHash, ByList, ByRange:
	default:
		fail(path+".strategy", fmt.Sprintf("unknown subpartition strategy %q", sub.Strategy))
	}
	if len(sub.KeyColumns) == 0 {
		fail(path+".key_columns", "subpartitioning requires at least one key column")
	}
	for i, col := range sub.KeyColumns {
		if _, ok := colSet[strings.ToUpper(col)]; !ok {
			fail(fmt.Sprintf("%s.key_columns[%d]", path, i),
				fmt.Sprintf("subpartition key references undeclared column %q", col))
		}
	}
	if sub.Count <= 0 {
		fail(path+".count", "subpartitioning requires a positive count")
	}
	if len(sub.StoreIn) > 0 && len(sub.StoreIn) != sub.Count {
		fail(path+".store_in",
			fmt.Sprintf("store_in lists %d tablespaces for %d subpartitions", len(sub.StoreIn), sub.Count))
	}
	return issues
}

// checkRangeBounds verifies that range partition bounds are strictly
// increasing in declaration order. Bounds are compared when both sides parse
// as numbers or as DATE 'YYYY-MM-DD' literals; MAXVALUE sorts above
// everything and may only appear on the last partition.
func checkRangeBounds(parts []Partition) []Issue {
	var issues []Issue
	for i := 1; i < len(parts); i++ {
		prev, cur := parts[i-1], parts[i]
		path := fmt.Sprintf("partitioning.partitions[%d].values", i)
		cmp, ok := compareBounds(prev.Values, cur.Values)
		if !ok {
			continue
		}
		if cmp >= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message: fmt.Sprintf("range bound of %s (%s) must be greater than bound of %s (%s)",
					cur.Name, cur.Values, prev.Name, prev.Values),
			})
		}
	}
	for i, p := range parts {
		if isMaxValue(p.Values) && i != len(parts)-1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("partitioning.partitions[%d].values", i),
				Message:  "MAXVALUE bound must be the last partition",
			})
		}
	}
	return issues
}

func isMaxValue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "MAXVALUE")
}

// compareBounds compares two bound expressions. The second return value
// reports whether the pair was comparable at all.
func compareBounds(a, b string) (int, bool) {
	if isMaxValue(a) {
		if isMaxValue(b) {
			return 0, true
		}
		return 1, true
	}
	if isMaxValue(b) {
		return -1, true
	}
	if av, aok := parseNumericBound(a); aok {
		if bv, bok := parseNumericBound(b); bok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if at, aok := parseDateBound(a); aok {
		if bt, bok := parseDateBound(b); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

func parseNumericBound(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// parseDateBound accepts DATE 'YYYY-MM-DD' literals and bare quoted or
// unquoted ISO dates.
func parseDateBound(v string) (time.Time, bool) {
	s := strings.TrimSpace(v)
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "DATE") {
		s = strings.TrimSpace(s[4:])
	}
	s = strings.Trim(s, "'")
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}

func hasConstraint(cons []Constraint, kind ConstraintKind) bool {
	for _, c := range cons {
		if c.Kind == kind {
			return true
		}
	}
	return false
}
