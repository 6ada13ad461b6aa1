// This file renders the ALTER/DML statements the online evolution workflows
// execute: relocations, index rebuilds, atomic renames, constraint toggles,
// batched column removal, and watermark-bounded copy batches. All of them go
// through the same identifier checks as CREATE synthesis.
package ddl

import (
	"fmt"
	"strings"
	"time"
)

// qualify joins an optional owner and an object name with quoting.
func qualify(owner, name string) string {
	if owner == "" {
		return quoteIdent(name)
	}
	return quoteIdent(owner) + "." + quoteIdent(name)
}

// checkIdents validates every identifier and reports the first problem.
func checkIdents(names ...string) error {
	for _, n := range names {
		if n == "" {
			continue
		}
		if prob := checkIdent(n); prob != "" {
			return fmt.Errorf("ddl: %s", prob)
		}
	}
	return nil
}

// parallelHint renders the intra-statement parallel clause for degree > 1.
func parallelHint(degree int) string {
	if degree > 1 {
		return fmt.Sprintf(" PARALLEL %d", degree)
	}
	return ""
}

// MoveTable renders the relocation statement for a whole table.
func MoveTable(owner, table, tablespace string, parallel int, online bool) (string, error) {
	if err := checkIdents(owner, table, tablespace); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "ALTER TABLE %s MOVE", qualify(owner, table))
	if tablespace != "" {
		sb.WriteString(" TABLESPACE " + quoteIdent(tablespace))
	}
	if online {
		sb.WriteString(" ONLINE")
	}
	sb.WriteString(parallelHint(parallel))
	sb.WriteString(";")
	return sb.String(), nil
}

// MovePartition renders the relocation statement for a single partition.
func MovePartition(owner, table, partition, tablespace string, parallel int) (string, error) {
	if err := checkIdents(owner, table, partition, tablespace); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "ALTER TABLE %s MOVE PARTITION %s", qualify(owner, table), quoteIdent(partition))
	if tablespace != "" {
		sb.WriteString(" TABLESPACE " + quoteIdent(tablespace))
	}
	sb.WriteString(parallelHint(parallel))
	sb.WriteString(";")
	return sb.String(), nil
}

// RebuildIndex renders an index rebuild, optionally into a new tablespace.
func RebuildIndex(owner, index, tablespace string, parallel int) (string, error) {
	if err := checkIdents(owner, index, tablespace); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "ALTER INDEX %s REBUILD", qualify(owner, index))
	if tablespace != "" {
		sb.WriteString(" TABLESPACE " + quoteIdent(tablespace))
	}
	sb.WriteString(parallelHint(parallel))
	sb.WriteString(";")
	return sb.String(), nil
}

// RenameTable renders one half of an atomic rename pair.
func RenameTable(owner, from, to string) (string, error) {
	if err := checkIdents(owner, from, to); err != nil {
		return "", err
	}
	return fmt.Sprintf("RENAME TABLE %s TO %s;", qualify(owner, from), quoteIdent(to)), nil
}

// DropTable renders a drop for cleanup steps.
func DropTable(owner, table string) (string, error) {
	if err := checkIdents(owner, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP TABLE %s;", qualify(owner, table)), nil
}

// DisableConstraint and EnableConstraint render the constraint toggles used
// by the column-removal workflow.
func DisableConstraint(owner, table, constraint string) (string, error) {
	if err := checkIdents(owner, table, constraint); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DISABLE CONSTRAINT %s;", qualify(owner, table), quoteIdent(constraint)), nil
}

func EnableConstraint(owner, table, constraint string) (string, error) {
	if err := checkIdents(owner, table, constraint); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ENABLE CONSTRAINT %s;", qualify(owner, table), quoteIdent(constraint)), nil
}

// SetColumnsUnused renders the logical removal that makes columns invisible
// to readers and writers before any physical rewrite.
func SetColumnsUnused(owner, table string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("ddl: SetColumnsUnused requires at least one column")
	}
	if err := checkIdents(append([]string{owner, table}, columns...)...); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s SET UNUSED (%s);", qualify(owner, table), quoteIdents(columns)), nil
}

// DropUnusedColumns renders one checkpointed slice of the physical removal.
// The checkpoint bounds the rows rewritten before the engine commits, which
// is what lets the workflow run the drop in batches.
func DropUnusedColumns(owner, table string, checkpoint int, parallel int) (string, error) {
	if err := checkIdents(owner, table); err != nil {
		return "", err
	}
	if checkpoint <= 0 {
		return "", fmt.Errorf("ddl: DropUnusedColumns checkpoint must be positive")
	}
	return fmt.Sprintf("ALTER TABLE %s DROP UNUSED COLUMNS CHECKPOINT %d%s;",
		qualify(owner, table), checkpoint, parallelHint(parallel)), nil
}

// ContinueDropColumns renders the resumption form of the batched drop, used
// for every batch after the first. Each call processes at most checkpoint
// row-chunks before the engine commits.
func ContinueDropColumns(owner, table string, checkpoint int) (string, error) {
	if err := checkIdents(owner, table); err != nil {
		return "", err
	}
	if checkpoint <= 0 {
		return "", fmt.Errorf("ddl: ContinueDropColumns checkpoint must be positive")
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMNS CONTINUE CHECKPOINT %d;",
		qualify(owner, table), checkpoint), nil
}

// RedefStart, RedefCopyDependents, and RedefFinish render the calls that
// drive the engine's native online-redefinition facility.
func RedefStart(owner, table, interim string) (string, error) {
	return redefCall("START_REDEF_TABLE", owner, table, interim)
}

func RedefCopyDependents(owner, table, interim string) (string, error) {
	return redefCall("COPY_TABLE_DEPENDENTS", owner, table, interim)
}

func RedefFinish(owner, table, interim string) (string, error) {
	return redefCall("FINISH_REDEF_TABLE", owner, table, interim)
}

func redefCall(proc, owner, table, interim string) (string, error) {
	if err := checkIdents(owner, table, interim); err != nil {
		return "", err
	}
	if owner == "" {
		owner = "CURRENT_SCHEMA"
	}
	return fmt.Sprintf("BEGIN DBMS_REDEFINITION.%s(%s, %s, %s); END;",
		proc, QuoteLiteral(owner), QuoteLiteral(table), QuoteLiteral(interim)), nil
}

// GatherStats renders the statistics refresh issued after a structural
// change.
func GatherStats(owner, table string) (string, error) {
	if err := checkIdents(owner, table); err != nil {
		return "", err
	}
	if owner == "" {
		owner = "CURRENT_SCHEMA"
	}
	return fmt.Sprintf("BEGIN DBMS_STATS.GATHER_TABLE_STATS(%s, %s); END;",
		QuoteLiteral(owner), QuoteLiteral(table)), nil
}

// InterimName derives the staging name used by the migrate workflow and the
// rebuild scripts, kept inside the identifier length limit.
func InterimName(table, suffix string) string {
	return interimName(table, suffix)
}

// CountRows renders the rowcount probe used by VALIDATE_ROWCOUNTS.
func CountRows(owner, table string) (string, error) {
	if err := checkIdents(owner, table); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s;", qualify(owner, table)), nil
}

// MaxKey renders the watermark probe over the copy key.
func MaxKey(owner, table, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("ddl: MaxKey requires a key column")
	}
	if err := checkIdents(owner, table, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT MAX(%s) FROM %s;", quoteIdent(key), qualify(owner, table)), nil
}

// CopyBatch renders one watermark-bounded batch of the parallel copy:
// rows with key strictly above the watermark, in key order, capped at
// batchSize. A nil watermark means "from the beginning".
func CopyBatch(owner, src, dst string, columns []string, key string, watermark any, batchSize, parallel int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("ddl: CopyBatch requires a key column")
	}
	if err := checkIdents(append([]string{owner, src, dst, key}, columns...)...); err != nil {
		return "", err
	}
	if batchSize <= 0 {
		return "", fmt.Errorf("ddl: CopyBatch batch size must be positive")
	}
	var sb strings.Builder
	sb.WriteString("INSERT ")
	if parallel > 1 {
		fmt.Fprintf(&sb, "/*+ APPEND PARALLEL(%d) */ ", parallel)
	}
	fmt.Fprintf(&sb, "INTO %s (%s)\nSELECT %s\nFROM %s\n",
		qualify(owner, dst), quoteIdents(columns), quoteIdents(columns), qualify(owner, src))
	if watermark != nil {
		fmt.Fprintf(&sb, "WHERE %s > %s\n", quoteIdent(key), FormatValue(watermark))
	}
	fmt.Fprintf(&sb, "ORDER BY %s\nFETCH FIRST %d ROWS ONLY;", quoteIdent(key), batchSize)
	return sb.String(), nil
}

// SyncDelta renders the final catch-up copy of rows that arrived above the
// last committed watermark.
func SyncDelta(owner, src, dst string, columns []string, key string, watermark any) (string, error) {
	if key == "" {
		return "", fmt.Errorf("ddl: SyncDelta requires a key column")
	}
	if err := checkIdents(append([]string{owner, src, dst, key}, columns...)...); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s)\nSELECT %s\nFROM %s\n",
		qualify(owner, dst), quoteIdents(columns), quoteIdents(columns), qualify(owner, src))
	if watermark != nil {
		fmt.Fprintf(&sb, "WHERE %s > %s\n", quoteIdent(key), FormatValue(watermark))
	}
	fmt.Fprintf(&sb, "ORDER BY %s;", quoteIdent(key))
	return sb.String(), nil
}

// FormatValue renders a Go value as a SQL literal for watermark predicates.
// Strings are quoted; integers and floats pass through; times become DATE
// literals.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", x)
	case time.Time:
		return "DATE " + QuoteLiteral(x.Format("2006-01-02"))
	case string:
		if _, ok := parseNumericBound(x); ok {
			return x
		}
		return QuoteLiteral(x)
	default:
		return QuoteLiteral(fmt.Sprintf("%v", x))
	}
}
