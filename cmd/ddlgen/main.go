package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"ddlforge/internal/ddl"
	"ddlforge/internal/metrics"
)

// main is the entry point for the ddlgen binary. It loads one or more table
// definitions from JSON, validates them, and emits the synthesized DDL either
// to stdout or to a file.
func main() {
	var (
		inPath   string
		outPath  string
		validate bool
		check    bool
	)

	flag.StringVar(&inPath, "in", "", "table definition JSON path (single object or array)")
	flag.StringVar(&outPath, "out", "", "output file for the generated DDL (default stdout)")
	flag.BoolVar(&validate, "validate", false, "validate the definitions and exit")
	flag.BoolVar(&check, "check", false, "run the structural syntax check on the generated text")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if inPath == "" {
		fatalf("ddlgen: -in is required")
	}

	defs, err := loadDefs(inPath)
	if err != nil {
		fatalf("ddlgen: %v", err)
	}

	// Validate every definition before generating anything.
	hasError := false
	for _, def := range defs {
		for _, iss := range ddl.Validate(def) {
			fmt.Fprintf(os.Stderr, "%s: %s: %s: %s\n", def.Name, iss.Severity, iss.Path, iss.Message)
			if iss.Severity == ddl.SeverityError {
				hasError = true
			}
		}
	}
	if hasError {
		log.Printf("definitions are invalid: %v", inPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("definitions are valid: %v", inPath)
		os.Exit(0)
	}

	engine := ddl.NewEngine()

	var st ddl.Statement
	if len(defs) == 1 {
		st, err = engine.Build(defs[0])
	} else {
		st, err = engine.BuildAll(defs)
	}
	if err != nil {
		fatalf("ddlgen: %v", err)
	}
	for range defs {
		metrics.RecordStatement("TABLE")
	}

	if check && !ddl.ValidateSyntax(st.Text) {
		fatalf("ddlgen: generated text failed the syntax check")
	}

	if *verbose {
		log.Printf("ddlgen: objects=%d fingerprint=%016x", len(defs), st.Fingerprint)
	}

	if outPath == "" {
		fmt.Println(st.Text)
		return
	}
	if err := os.WriteFile(outPath, []byte(st.Text+"\n"), 0o644); err != nil {
		fatalf("ddlgen: write output: %v", err)
	}
	if *verbose {
		log.Printf("ddlgen: wrote %s", outPath)
	}
}

// loadDefs decodes a single TableDef object or an array of them.
func loadDefs(path string) ([]ddl.TableDef, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var defs []ddl.TableDef
		if err := json.Unmarshal(b, &defs); err != nil {
			return nil, fmt.Errorf("decode definitions: %w", err)
		}
		if len(defs) == 0 {
			return nil, fmt.Errorf("no definitions in %s", path)
		}
		return defs, nil
	}

	var def ddl.TableDef
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return []ddl.TableDef{def}, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
