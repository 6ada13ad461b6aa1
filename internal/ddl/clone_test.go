package ddl

import (
	"strings"
	"testing"
)

func TestBuildClone(t *testing.T) {
	t.Parallel()

	src := baseDef()

	st, err := NewEngine().BuildClone(src, "orders_new", false)
	if err != nil {
		t.Fatalf("BuildClone: %v", err)
	}
	if !strings.Contains(st.Text, `CREATE TABLE "app"."orders_new" (`) {
		t.Fatalf("clone does not create the new name:\n%s", st.Text)
	}
	// Constraint names are schema-global, so the clone renames them.
	if strings.Contains(st.Text, "orders_pk") {
		t.Fatalf("clone kept the source constraint name:\n%s", st.Text)
	}
	if !strings.Contains(st.Text, `CONSTRAINT "orders_new_c1" PRIMARY KEY ("id")`) {
		t.Fatalf("clone constraint not renamed deterministically:\n%s", st.Text)
	}
	if strings.Contains(st.Text, "INSERT INTO") {
		t.Fatalf("clone without copyData must not copy rows:\n%s", st.Text)
	}
}

func TestBuildClone_CopyData(t *testing.T) {
	t.Parallel()

	src := baseDef()

	bare, err := NewEngine().BuildClone(src, "orders_new", false)
	if err != nil {
		t.Fatalf("BuildClone: %v", err)
	}
	withCopy, err := NewEngine().BuildClone(src, "orders_new", true)
	if err != nil {
		t.Fatalf("BuildClone: %v", err)
	}

	wantCopy := "INSERT INTO \"app\".\"orders_new\" (\"id\", \"created\")\n" +
		"SELECT \"id\", \"created\"\n" +
		"FROM \"app\".\"orders\";\n"
	if !strings.Contains(withCopy.Text, wantCopy) {
		t.Fatalf("copy statement missing:\n%s", withCopy.Text)
	}
	if bare.Fingerprint == withCopy.Fingerprint {
		t.Fatalf("fingerprint not recomputed after appending the copy")
	}
}

func TestBuildClone_RejectsBadName(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine().BuildClone(baseDef(), "drop table", false); err == nil {
		t.Fatalf("BuildClone accepted an illegal name")
	}
}

func TestCloneConstraintName(t *testing.T) {
	t.Parallel()

	if got := cloneConstraintName("orders_new", 0); got != "orders_new_c1" {
		t.Fatalf("cloneConstraintName = %q", got)
	}
	long := strings.Repeat("x", 30)
	got := cloneConstraintName(long, 9)
	if len(got) > maxIdentLen || !strings.HasSuffix(got, "_c10") {
		t.Fatalf("cloneConstraintName(long) = %q (len %d)", got, len(got))
	}
}
