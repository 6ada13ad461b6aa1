package ddl

import (
	"fmt"
	"strings"
)

// BuildClone renders a CREATE TABLE for a structurally identical copy of src
// under newName, optionally followed by an INSERT ... SELECT that copies the
// data. The source definition is typically reflected from the running schema
// by an external collaborator; this function only consumes it.
//
// Constraint names are schema-global in the target dialect, so cloned
// constraints are renamed deterministically from newName and their position.
// Partition names are table-scoped and kept as-is.
func (e *Engine) BuildClone(src TableDef, newName string, copyData bool) (Statement, error) {
	if prob := checkIdent(newName); prob != "" {
		return Statement{}, fmt.Errorf("ddl: clone target name: %s", prob)
	}

	clone := src
	clone.Name = newName
	clone.Constraints = make([]Constraint, len(src.Constraints))
	for i, cn := range src.Constraints {
		renamed := cn
		renamed.Name = cloneConstraintName(newName, i)
		clone.Constraints[i] = renamed
	}

	st, err := e.Build(clone)
	if err != nil {
		return Statement{}, err
	}

	if copyData {
		cols := make([]string, len(src.Columns))
		for i, c := range src.Columns {
			cols[i] = c.Name
		}
		st.Text += fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s;\n",
			clone.QualifiedName(), quoteIdents(cols), quoteIdents(cols), src.QualifiedName())
		st.Fingerprint = fingerprint(st.Text)
	}
	return st, nil
}

// cloneConstraintName derives a deterministic constraint name for a clone,
// kept inside the identifier length limit.
func cloneConstraintName(table string, idx int) string {
	suffix := fmt.Sprintf("_c%d", idx+1)
	base := strings.ToLower(table)
	if len(base)+len(suffix) > maxIdentLen {
		base = base[:maxIdentLen-len(suffix)]
	}
	return base + suffix
}
