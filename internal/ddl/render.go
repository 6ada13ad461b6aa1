// This file implements the synthesis engine: a deterministic pipeline that
// renders a validated TableDef into CREATE TABLE statement text. Rendering is
// pure: the same definition always yields byte-identical text. Output is
// organized as column clauses, constraint clauses, the kind-specific
// organization clause, the partition clause, and property clauses, in that
// fixed order.
package ddl

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// SynthesisError reports a definition the engine cannot render, most notably
// an unrecognized table kind. Unknown kinds are always an error, never a
// silent fallback to heap.
type SynthesisError struct {
	Object string
	Reason string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("ddl: cannot synthesize %s: %s", e.Object, e.Reason)
}

// Engine renders table definitions into statement text. The zero value is not
// usable; construct with NewEngine. Sanitize is applied to every untrusted
// raw expression (column defaults, check expressions, partition bounds)
// before interpolation and may be replaced by callers that pre-sanitize.
type Engine struct {
	Sanitize Sanitizer
}

// NewEngine returns an Engine with the strict default sanitizer.
func NewEngine() *Engine {
	return &Engine{Sanitize: StrictSanitizer}
}

// Build validates the definition and renders its CREATE TABLE statement,
// followed by COMMENT statements for any table or column comments. It returns
// a *ValidationError when the definition has error-severity issues and a
// *SynthesisError when the definition names an unknown kind.
func (e *Engine) Build(t TableDef) (Statement, error) {
	if issues := errorIssues(Validate(t)); len(issues) > 0 {
		return Statement{}, &ValidationError{Object: t.Name, Issues: issues}
	}
	if err := e.sanitizeDef(t); err != nil {
		return Statement{}, err
	}
	text, err := e.render(t)
	if err != nil {
		return Statement{}, err
	}
	return e.newStatement(text, t), nil
}

func (e *Engine) newStatement(text string, t TableDef) Statement {
	return Statement{
		Text:        text,
		Object:      t.Name,
		Kind:        t.Kind,
		GeneratedAt: time.Now().UTC(),
		Fingerprint: fingerprint(text),
	}
}

// fingerprint hashes statement text; stable across runs for identical input.
func fingerprint(text string) uint64 {
	return xxh3.Hash([]byte(text))
}

// sanitizeDef runs the sanitizer over every caller-supplied raw expression.
func (e *Engine) sanitizeDef(t TableDef) error {
	check := func(field, expr string) error {
		if expr == "" {
			return nil
		}
		if err := e.Sanitize(expr); err != nil {
			return fmt.Errorf("ddl: %s of %s rejected: %w", field, t.Name, err)
		}
		return nil
	}
	for _, c := range t.Columns {
		if err := check("default expression of column "+c.Name, c.Default); err != nil {
			return err
		}
	}
	for _, cn := range t.Constraints {
		if err := check("check expression of constraint "+cn.Name, cn.Expr); err != nil {
			return err
		}
	}
	if ps := t.Partitioning; ps != nil {
		for _, p := range ps.Partitions {
			if err := check("bound expression of partition "+p.Name, p.Values); err != nil {
				return err
			}
		}
	}
	return nil
}

// render assembles the statement text. The definition is already validated
// and sanitized.
func (e *Engine) render(t TableDef) (string, error) {
	var sb strings.Builder

	sb.WriteString("CREATE ")
	if t.Kind == KindTemporary {
		sb.WriteString("GLOBAL TEMPORARY ")
	}
	sb.WriteString("TABLE ")
	sb.WriteString(t.QualifiedName())
	sb.WriteString(" (\n")

	clauses := make([]string, 0, len(t.Columns)+len(t.Constraints)+1)
	for _, c := range t.Columns {
		clauses = append(clauses, renderColumn(c))
	}
	for _, cn := range t.Constraints {
		clauses = append(clauses, renderConstraint(cn))
	}
	if extra := implicitJSONCheck(t); extra != "" {
		clauses = append(clauses, extra)
	}
	sb.WriteString("  ")
	sb.WriteString(strings.Join(clauses, ",\n  "))
	sb.WriteString("\n)")

	org, err := organizationClause(t)
	if err != nil {
		return "", err
	}
	if org != "" {
		sb.WriteString("\n")
		sb.WriteString(org)
	}

	if t.Partitioning != nil {
		sb.WriteString("\n")
		sb.WriteString(renderPartitioning(*t.Partitioning))
	}

	for _, p := range propertyClauses(t) {
		sb.WriteString("\n")
		sb.WriteString(p)
	}
	sb.WriteString(";\n")

	renderComments(&sb, t)
	return sb.String(), nil
}

// renderColumn renders one column clause:
//
//	"NAME" TYPE [DEFAULT expr] [GENERATED ALWAYS AS IDENTITY] [NOT NULL]
func renderColumn(c Column) string {
	var sb strings.Builder
	sb.WriteString(quoteIdent(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(renderType(c))
	if c.Default != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(c.Default)
	}
	if c.Identity {
		sb.WriteString(" GENERATED ALWAYS AS IDENTITY")
	}
	if c.NotNull {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}

// renderType maps the closed base-type tag plus length/precision/scale to the
// dialect's type syntax.
func renderType(c Column) string {
	switch c.Type {
	case TypeNumber:
		switch {
		case c.Precision > 0 && c.Scale != 0:
			return fmt.Sprintf("NUMBER(%d,%d)", c.Precision, c.Scale)
		case c.Precision > 0:
			return fmt.Sprintf("NUMBER(%d)", c.Precision)
		}
		return "NUMBER"
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "BINARY_DOUBLE"
	case TypeVarchar:
		return fmt.Sprintf("VARCHAR2(%d)", c.Length)
	case TypeChar:
		return fmt.Sprintf("CHAR(%d)", c.Length)
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		if c.Precision > 0 {
			return fmt.Sprintf("TIMESTAMP(%d)", c.Precision)
		}
		return "TIMESTAMP"
	case TypeClob:
		return "CLOB"
	case TypeBlob:
		return "BLOB"
	case TypeRaw:
		return fmt.Sprintf("RAW(%d)", c.Length)
	case TypeJSON:
		return "JSON"
	}
	// Unreachable after validation; render something greppable rather than
	// panic in case a caller skips Validate.
	return strings.ToUpper(string(c.Type))
}

func renderConstraint(cn Constraint) string {
	var sb strings.Builder
	sb.WriteString("CONSTRAINT ")
	sb.WriteString(quoteIdent(cn.Name))
	switch cn.Kind {
	case PrimaryKey:
		sb.WriteString(" PRIMARY KEY (")
		sb.WriteString(quoteIdents(cn.Columns))
		sb.WriteString(")")
	case Unique:
		sb.WriteString(" UNIQUE (")
		sb.WriteString(quoteIdents(cn.Columns))
		sb.WriteString(")")
	case ForeignKey:
		sb.WriteString(" FOREIGN KEY (")
		sb.WriteString(quoteIdents(cn.Columns))
		sb.WriteString(") REFERENCES ")
		sb.WriteString(quoteIdent(cn.RefTable))
		if len(cn.RefColumns) > 0 {
			sb.WriteString(" (")
			sb.WriteString(quoteIdents(cn.RefColumns))
			sb.WriteString(")")
		}
	case Check:
		sb.WriteString(" CHECK (")
		sb.WriteString(cn.Expr)
		sb.WriteString(")")
	}
	return sb.String()
}

// implicitJSONCheck adds the IS JSON check for semi-structured tables unless
// the caller already declared one.
func implicitJSONCheck(t TableDef) string {
	if t.Kind != KindSemiStructured {
		return ""
	}
	for _, cn := range t.Constraints {
		if cn.Kind == Check && strings.Contains(strings.ToUpper(cn.Expr), "IS JSON") {
			return ""
		}
	}
	var doc string
	for _, c := range t.Columns {
		if c.Type == TypeJSON {
			doc = c.Name
			break
		}
	}
	name := t.Name + "_json_chk"
	if len(name) > maxIdentLen {
		name = name[:maxIdentLen-9] + "_json_chk"
	}
	return fmt.Sprintf("CONSTRAINT %s CHECK (%s IS JSON)", quoteIdent(name), quoteIdent(doc))
}

// organizationClause returns the kind-specific trailing clause. The switch is
// exhaustive over TableKind; anything else is a SynthesisError.
func organizationClause(t TableDef) (string, error) {
	switch t.Kind {
	case KindHeap, KindSemiStructured:
		return "", nil
	case KindIndexOrganized:
		return "ORGANIZATION INDEX", nil
	case KindAppendOnly:
		return "ORGANIZATION APPEND", nil
	case KindColumnar:
		return "ORGANIZATION COLUMNAR", nil
	case KindTemporary:
		if t.Props.PreserveRows {
			return "ON COMMIT PRESERVE ROWS", nil
		}
		return "ON COMMIT DELETE ROWS", nil
	}
	return "", &SynthesisError{Object: t.Name, Reason: fmt.Sprintf("unknown table kind %q", t.Kind)}
}

// renderPartitioning renders the partition clause, including the nested
// subpartition clause for composite-partitioned tables.
func renderPartitioning(ps PartitionSpec) string {
	var sb strings.Builder
	switch ps.Strategy {
	case ByReference:
		sb.WriteString("PARTITION BY REFERENCE (")
		sb.WriteString(quoteIdent(ps.RefConstraint))
		sb.WriteString(")")
		return sb.String()
	case ByRange:
		sb.WriteString("PARTITION BY RANGE (")
	case ByList:
		sb.WriteString("PARTITION BY LIST (")
	case ByHash:
		sb.WriteString("PARTITION BY HASH (")
	}
	sb.WriteString(quoteIdents(ps.KeyColumns))
	sb.WriteString(")")

	if ps.Sub != nil {
		sb.WriteString("\n")
		sb.WriteString(renderSubSpec(*ps.Sub))
	}

	if ps.Strategy == ByHash && len(ps.Partitions) == 0 {
		sb.WriteString(fmt.Sprintf(" PARTITIONS %d", ps.HashCount))
		if len(ps.StoreIn) > 0 {
			sb.WriteString(" STORE IN (")
			sb.WriteString(quoteIdents(ps.StoreIn))
			sb.WriteString(")")
		}
		return sb.String()
	}

	sb.WriteString(" (\n")
	for i, p := range ps.Partitions {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString("  PARTITION ")
		sb.WriteString(quoteIdent(p.Name))
		switch ps.Strategy {
		case ByRange:
			sb.WriteString(" VALUES LESS THAN (")
			sb.WriteString(normalizeBound(p.Values))
			sb.WriteString(")")
		case ByList:
			sb.WriteString(" VALUES (")
			sb.WriteString(p.Values)
			sb.WriteString(")")
		}
		if p.Tablespace != "" {
			sb.WriteString(" TABLESPACE ")
			sb.WriteString(quoteIdent(p.Tablespace))
		}
	}
	sb.WriteString("\n)")
	return sb.String()
}

// renderSubSpec renders the SUBPARTITION BY clause of a composite table.
func renderSubSpec(sub SubpartitionSpec) string {
	var sb strings.Builder
	sb.WriteString("SUBPARTITION BY ")
	sb.WriteString(strings.ToUpper(string(sub.Strategy)))
	sb.WriteString(" (")
	sb.WriteString(quoteIdents(sub.KeyColumns))
	sb.WriteString(fmt.Sprintf(") SUBPARTITIONS %d", sub.Count))
	if len(sub.StoreIn) > 0 {
		sb.WriteString(" STORE IN (")
		sb.WriteString(quoteIdents(sub.StoreIn))
		sb.WriteString(")")
	}
	return sb.String()
}

// normalizeBound uppercases the MAXVALUE keyword; everything else passes
// through untouched (already sanitized).
func normalizeBound(v string) string {
	if isMaxValue(v) {
		return "MAXVALUE"
	}
	return v
}

// propertyClauses renders the storage/property clauses in fixed order:
// tablespace, logging, compression, parallel, in-memory. Defaults are
// omitted rather than spelled out.
func propertyClauses(t TableDef) []string {
	var out []string
	if t.Props.Tablespace != "" {
		out = append(out, "TABLESPACE "+quoteIdent(t.Props.Tablespace))
	}
	if t.Props.NoLogging {
		out = append(out, "NOLOGGING")
	}
	if t.Props.Compress {
		out = append(out, "COMPRESS")
	}
	if t.Props.Parallel > 1 {
		out = append(out, fmt.Sprintf("PARALLEL %d", t.Props.Parallel))
	}
	if t.Props.InMemory {
		out = append(out, "INMEMORY")
	}
	return out
}

// renderComments appends COMMENT ON statements for the table and column
// comments. Comments are emitted as quoted literals, never as expressions.
func renderComments(sb *strings.Builder, t TableDef) {
	if t.Props.Comment != "" {
		fmt.Fprintf(sb, "COMMENT ON TABLE %s IS %s;\n", t.QualifiedName(), QuoteLiteral(t.Props.Comment))
	}
	for _, c := range t.Columns {
		if c.Comment != "" {
			fmt.Fprintf(sb, "COMMENT ON COLUMN %s.%s IS %s;\n",
				t.QualifiedName(), quoteIdent(c.Name), QuoteLiteral(c.Comment))
		}
	}
}
