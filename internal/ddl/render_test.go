package ddl

import (
	"errors"
	"strings"
	"testing"
)

/*
Unit tests for the synthesis engine.

These tests use table-driven cases to validate:
  - full statement text for a representative partitioned table
  - the organization clause per table kind
  - the implicit IS JSON check for semi-structured tables
  - partition clause variants (range, list, hash, reference, composite)
  - deterministic output and stable fingerprints
  - sanitizer rejection of hostile raw expressions
*/

func TestBuild_PartitionedTable(t *testing.T) {
	t.Parallel()

	def := TableDef{
		Owner: "sales",
		Name:  "orders",
		Kind:  KindHeap,
		Columns: []Column{
			{Name: "id", Type: TypeNumber, Precision: 12, Identity: true, NotNull: true},
			{Name: "customer_id", Type: TypeNumber, Precision: 12, NotNull: true},
			{Name: "order_date", Type: TypeDate, NotNull: true},
			{Name: "total", Type: TypeNumber, Precision: 12, Scale: 2, Default: "0"},
			{Name: "status", Type: TypeVarchar, Length: 20, Default: "'NEW'"},
		},
		Constraints: []Constraint{
			{Name: "orders_pk", Kind: PrimaryKey, Columns: []string{"id"}},
		},
		Partitioning: &PartitionSpec{
			Strategy:   ByRange,
			KeyColumns: []string{"order_date"},
			Partitions: []Partition{
				{Name: "p2023", Values: "DATE '2024-01-01'", Tablespace: "ts_2023"},
				{Name: "p2024", Values: "DATE '2025-01-01'"},
				{Name: "pmax", Values: "maxvalue"},
			},
		},
		Props: TableProps{
			Tablespace: "ts_data",
			Compress:   true,
			Parallel:   4,
			Comment:    "Customer orders",
		},
	}

	st, err := NewEngine().Build(def)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "CREATE TABLE \"sales\".\"orders\" (\n" +
		"  \"id\" NUMBER(12) GENERATED ALWAYS AS IDENTITY NOT NULL,\n" +
		"  \"customer_id\" NUMBER(12) NOT NULL,\n" +
		"  \"order_date\" DATE NOT NULL,\n" +
		"  \"total\" NUMBER(12,2) DEFAULT 0,\n" +
		"  \"status\" VARCHAR2(20) DEFAULT 'NEW',\n" +
		"  CONSTRAINT \"orders_pk\" PRIMARY KEY (\"id\")\n" +
		")\n" +
		"PARTITION BY RANGE (\"order_date\") (\n" +
		"  PARTITION \"p2023\" VALUES LESS THAN (DATE '2024-01-01') TABLESPACE \"ts_2023\",\n" +
		"  PARTITION \"p2024\" VALUES LESS THAN (DATE '2025-01-01'),\n" +
		"  PARTITION \"pmax\" VALUES LESS THAN (MAXVALUE)\n" +
		")\n" +
		"TABLESPACE \"ts_data\"\n" +
		"COMPRESS\n" +
		"PARALLEL 4;\n" +
		"COMMENT ON TABLE \"sales\".\"orders\" IS 'Customer orders';\n"

	if st.Text != want {
		t.Fatalf("statement text mismatch:\n--- got ---\n%s\n--- want ---\n%s", st.Text, want)
	}
	if st.Object != "orders" || st.Kind != KindHeap {
		t.Fatalf("statement metadata = %q/%q, want orders/heap", st.Object, st.Kind)
	}
	if st.Fingerprint == 0 {
		t.Fatalf("fingerprint is zero")
	}
	if !ValidateSyntax(st.Text) {
		t.Fatalf("generated text failed the syntax check:\n%s", st.Text)
	}
}

func TestBuild_OrganizationClauses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*TableDef)
		want   string
	}{
		{
			name:   "heap has no organization clause",
			mutate: func(d *TableDef) {},
			want:   ");",
		},
		{
			name:   "index organized",
			mutate: func(d *TableDef) { d.Kind = KindIndexOrganized },
			want:   "ORGANIZATION INDEX",
		},
		{
			name:   "append only",
			mutate: func(d *TableDef) { d.Kind = KindAppendOnly },
			want:   "ORGANIZATION APPEND",
		},
		{
			name:   "columnar",
			mutate: func(d *TableDef) { d.Kind = KindColumnar },
			want:   "ORGANIZATION COLUMNAR",
		},
		{
			name: "temporary delete rows",
			mutate: func(d *TableDef) {
				d.Kind = KindTemporary
			},
			want: "ON COMMIT DELETE ROWS",
		},
		{
			name: "temporary preserve rows",
			mutate: func(d *TableDef) {
				d.Kind = KindTemporary
				d.Props.PreserveRows = true
			},
			want: "ON COMMIT PRESERVE ROWS",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := baseDef()
			tc.mutate(&d)
			st, err := NewEngine().Build(d)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !strings.Contains(st.Text, tc.want) {
				t.Fatalf("text does not contain %q:\n%s", tc.want, st.Text)
			}
		})
	}
}

func TestBuild_TemporaryPrefix(t *testing.T) {
	t.Parallel()

	d := baseDef()
	d.Kind = KindTemporary

	st, err := NewEngine().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(st.Text, "CREATE GLOBAL TEMPORARY TABLE ") {
		t.Fatalf("temporary table text = %q", st.Text)
	}
}

func TestBuild_SemiStructuredImplicitCheck(t *testing.T) {
	t.Parallel()

	d := TableDef{
		Name: "events",
		Kind: KindSemiStructured,
		Columns: []Column{
			{Name: "id", Type: TypeNumber, Precision: 12, NotNull: true},
			{Name: "doc", Type: TypeJSON, NotNull: true},
		},
	}

	st, err := NewEngine().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(st.Text, `CONSTRAINT "events_json_chk" CHECK ("doc" IS JSON)`) {
		t.Fatalf("missing implicit json check:\n%s", st.Text)
	}

	// A caller-declared IS JSON check suppresses the implicit one.
	d.Constraints = []Constraint{
		{Name: "events_chk", Kind: Check, Expr: `"doc" IS JSON`},
	}
	st, err = NewEngine().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(st.Text, "events_json_chk") {
		t.Fatalf("implicit check should be suppressed:\n%s", st.Text)
	}
}

func TestBuild_PartitionVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		def  TableDef
		want []string
	}{
		{
			name: "list partitions",
			def: func() TableDef {
				d := baseDef()
				d.Columns = append(d.Columns, Column{Name: "region", Type: TypeVarchar, Length: 10})
				d.Partitioning = &PartitionSpec{
					Strategy:   ByList,
					KeyColumns: []string{"region"},
					Partitions: []Partition{
						{Name: "p_eu", Values: "'DE', 'FR'"},
						{Name: "p_us", Values: "'US'"},
					},
				}
				return d
			}(),
			want: []string{
				`PARTITION BY LIST ("region")`,
				`PARTITION "p_eu" VALUES ('DE', 'FR')`,
				`PARTITION "p_us" VALUES ('US')`,
			},
		},
		{
			name: "hash with count and store in",
			def: func() TableDef {
				d := baseDef()
				d.Partitioning = &PartitionSpec{
					Strategy:   ByHash,
					KeyColumns: []string{"id"},
					HashCount:  4,
					StoreIn:    []string{"ts1", "ts2", "ts3", "ts4"},
				}
				return d
			}(),
			want: []string{
				`PARTITION BY HASH ("id") PARTITIONS 4 STORE IN ("ts1", "ts2", "ts3", "ts4")`,
			},
		},
		{
			name: "reference",
			def: func() TableDef {
				d := baseDef()
				d.Constraints = append(d.Constraints, Constraint{
					Name: "orders_cust_fk", Kind: ForeignKey,
					Columns: []string{"id"}, RefTable: "customers",
				})
				d.Partitioning = &PartitionSpec{
					Strategy:      ByReference,
					RefConstraint: "orders_cust_fk",
				}
				return d
			}(),
			want: []string{
				`PARTITION BY REFERENCE ("orders_cust_fk")`,
			},
		},
		{
			name: "composite range hash",
			def: func() TableDef {
				d := baseDef()
				d.Partitioning = &PartitionSpec{
					Strategy:   ByRange,
					KeyColumns: []string{"created"},
					Partitions: []Partition{
						{Name: "p1", Values: "DATE '2025-01-01'"},
						{Name: "pmax", Values: "MAXVALUE"},
					},
					Sub: &SubpartitionSpec{
						Strategy:   ByHash,
						KeyColumns: []string{"id"},
						Count:      8,
						StoreIn:    []string{"ts1", "ts2", "ts3", "ts4", "ts5", "ts6", "ts7", "ts8"},
					},
				}
				return d
			}(),
			want: []string{
				`PARTITION BY RANGE ("created")`,
				`SUBPARTITION BY HASH ("id") SUBPARTITIONS 8 STORE IN (`,
				`PARTITION "pmax" VALUES LESS THAN (MAXVALUE)`,
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st, err := NewEngine().Build(tc.def)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(st.Text, w) {
					t.Fatalf("text does not contain %q:\n%s", w, st.Text)
				}
			}
		})
	}
}

func TestBuild_ColumnComments(t *testing.T) {
	t.Parallel()

	d := baseDef()
	d.Columns[1].Comment = "creation date; it's derived"

	st, err := NewEngine().Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := `COMMENT ON COLUMN "app"."orders"."created" IS 'creation date; it''s derived';`
	if !strings.Contains(st.Text, want) {
		t.Fatalf("text does not contain %q:\n%s", want, st.Text)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	d := baseDef()
	d.Partitioning = &PartitionSpec{
		Strategy:   ByRange,
		KeyColumns: []string{"id"},
		Partitions: []Partition{
			{Name: "p1", Values: "1000"},
			{Name: "pmax", Values: "MAXVALUE"},
		},
	}

	eng := NewEngine()
	a, err := eng.Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := eng.Build(d)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Text != b.Text {
		t.Fatalf("texts differ across runs:\n%s\n---\n%s", a.Text, b.Text)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ: %x vs %x", a.Fingerprint, b.Fingerprint)
	}
}

func TestBuild_RejectsInvalidDefinition(t *testing.T) {
	t.Parallel()

	d := baseDef()
	d.Kind = "clustered"

	_, err := NewEngine().Build(d)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Build error = %v, want *ValidationError", err)
	}
	if verr.Object != "orders" || len(verr.Issues) == 0 {
		t.Fatalf("validation error = %+v", verr)
	}
}

func TestBuild_SanitizerRejectsHostileExpressions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*TableDef)
	}{
		{
			name:   "statement separator in default",
			mutate: func(d *TableDef) { d.Columns[0].Default = "0; DROP TABLE users" },
		},
		{
			name: "comment token in check expression",
			mutate: func(d *TableDef) {
				d.Constraints = append(d.Constraints, Constraint{
					Name: "orders_chk", Kind: Check, Expr: "id > 0 -- always",
				})
			},
		},
		{
			name:   "clause escape in default",
			mutate: func(d *TableDef) { d.Columns[0].Default = "0) NOLOGGING PARALLEL 64 (1" },
		},
		{
			name: "unterminated literal in partition bound",
			mutate: func(d *TableDef) {
				d.Partitioning = &PartitionSpec{
					Strategy:   ByList,
					KeyColumns: []string{"id"},
					Partitions: []Partition{{Name: "p1", Values: "'broken"}},
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := baseDef()
			tc.mutate(&d)
			if _, err := NewEngine().Build(d); err == nil {
				t.Fatalf("Build accepted a hostile expression")
			} else if !strings.Contains(err.Error(), "rejected") {
				t.Fatalf("error = %v, want sanitizer rejection", err)
			}
		})
	}
}
