package ddl

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// BuildAll renders one CREATE TABLE statement per definition and concatenates
// them in the order given. The engine performs no foreign-key dependency
// reordering: callers are responsible for supplying a dependency-respecting
// order, and the output preserves it exactly.
//
// Definitions are rendered concurrently but joined in input order, so the
// concatenated text is byte-identical across runs for identical input.
func (e *Engine) BuildAll(defs []TableDef) (Statement, error) {
	if len(defs) == 0 {
		return Statement{}, fmt.Errorf("ddl: BuildAll requires at least one definition")
	}

	texts := make([]string, len(defs))
	var g errgroup.Group
	for i, def := range defs {
		g.Go(func() error {
			st, err := e.Build(def)
			if err != nil {
				return err
			}
			texts[i] = st.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}

	text := strings.Join(texts, "\n")
	return Statement{
		Text:        text,
		Object:      fmt.Sprintf("%d tables", len(defs)),
		Kind:        defs[0].Kind,
		GeneratedAt: time.Now().UTC(),
		Fingerprint: fingerprint(text),
	}, nil
}
