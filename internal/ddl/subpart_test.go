package ddl

import (
	"errors"
	"strings"
	"testing"
)

// partitionedDef returns a range-partitioned source for conversion tests.
func partitionedDef() TableDef {
	d := baseDef()
	d.Partitioning = &PartitionSpec{
		Strategy:   ByRange,
		KeyColumns: []string{"created"},
		Partitions: []Partition{
			{Name: "p2024", Values: "DATE '2025-01-01'"},
			{Name: "pmax", Values: "MAXVALUE"},
		},
	}
	return d
}

func hashSub() SubpartitionSpec {
	return SubpartitionSpec{
		Strategy:   ByHash,
		KeyColumns: []string{"id"},
		Count:      4,
	}
}

func TestBuildAddSubpartitions_Rebuild(t *testing.T) {
	t.Parallel()

	st, err := NewEngine().BuildAddSubpartitions(partitionedDef(), hashSub(), ModeRebuild)
	if err != nil {
		t.Fatalf("BuildAddSubpartitions: %v", err)
	}

	// The script creates the interim shape with the subpartition clause,
	// copies, swaps names, and drops the retired table, in that order.
	wantOrder := []string{
		`CREATE TABLE "app"."orders_new" (`,
		`SUBPARTITION BY HASH ("id") SUBPARTITIONS 4`,
		`INSERT INTO "app"."orders_new"`,
		`RENAME TABLE "app"."orders" TO "orders_old";`,
		`RENAME TABLE "app"."orders_new" TO "orders";`,
		`DROP TABLE "orders_old";`,
	}
	pos := -1
	for _, w := range wantOrder {
		i := strings.Index(st.Text, w)
		if i < 0 {
			t.Fatalf("script does not contain %q:\n%s", w, st.Text)
		}
		if i < pos {
			t.Fatalf("script step %q out of order:\n%s", w, st.Text)
		}
		pos = i
	}
}

func TestBuildAddSubpartitions_Online(t *testing.T) {
	t.Parallel()

	st, err := NewEngine().BuildAddSubpartitions(partitionedDef(), hashSub(), ModeOnline)
	if err != nil {
		t.Fatalf("BuildAddSubpartitions: %v", err)
	}

	wantOrder := []string{
		`CREATE TABLE "app"."orders_redef" (`,
		`BEGIN DBMS_REDEFINITION.START_REDEF_TABLE('app', 'orders', 'orders_redef'); END;`,
		`BEGIN DBMS_REDEFINITION.COPY_TABLE_DEPENDENTS('app', 'orders', 'orders_redef'); END;`,
		`BEGIN DBMS_REDEFINITION.FINISH_REDEF_TABLE('app', 'orders', 'orders_redef'); END;`,
		`DROP TABLE "orders_redef";`,
	}
	pos := -1
	for _, w := range wantOrder {
		i := strings.Index(st.Text, w)
		if i < 0 {
			t.Fatalf("script does not contain %q:\n%s", w, st.Text)
		}
		if i < pos {
			t.Fatalf("script step %q out of order:\n%s", w, st.Text)
		}
		pos = i
	}
}

func TestBuildAddSubpartitions_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unpartitioned source", func(t *testing.T) {
		t.Parallel()
		_, err := NewEngine().BuildAddSubpartitions(baseDef(), hashSub(), ModeRebuild)
		var serr *SynthesisError
		if !errors.As(err, &serr) {
			t.Fatalf("error = %v, want *SynthesisError", err)
		}
	})

	t.Run("hash top level", func(t *testing.T) {
		t.Parallel()
		d := baseDef()
		d.Partitioning = &PartitionSpec{Strategy: ByHash, KeyColumns: []string{"id"}, HashCount: 4}
		if _, err := NewEngine().BuildAddSubpartitions(d, hashSub(), ModeRebuild); err == nil {
			t.Fatalf("accepted a hash-partitioned source")
		}
	})

	t.Run("bad sub spec", func(t *testing.T) {
		t.Parallel()
		sub := hashSub()
		sub.Count = 0
		_, err := NewEngine().BuildAddSubpartitions(partitionedDef(), sub, ModeRebuild)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("error = %v, want *ValidationError", err)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		if _, err := NewEngine().BuildAddSubpartitions(partitionedDef(), hashSub(), "inplace"); err == nil {
			t.Fatalf("accepted an unknown mode")
		}
	})
}
