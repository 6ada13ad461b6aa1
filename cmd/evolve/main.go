package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ddlforge/internal/config"
	"ddlforge/internal/ddl"
	"ddlforge/internal/evolve"
	"ddlforge/internal/ledger"
	"ddlforge/internal/metrics"
	"ddlforge/internal/metrics/datadog"
	"ddlforge/internal/metrics/prompush"
	"ddlforge/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "ddlforge/internal/storage/all"
)

// main is the entry point for the evolve binary. It loads the profile,
// optionally initializes a metrics backend, and runs one workflow or ledger
// query.
func main() {
	var (
		cfgPath    string
		op         string
		paramsPath string
		stmtPath   string
		target     string
		opID       int64
		days       int
		validate   bool
	)

	flag.StringVar(&cfgPath, "config", "configs/profiles/sample.json", "profile config JSON path")
	flag.StringVar(&op, "op", "", "operation: move, migrate, convert, remove-columns, exec, status, history, summary, errors, cancel, sweep")
	flag.StringVar(&paramsPath, "params", "", "operation parameters JSON path")
	flag.StringVar(&stmtPath, "stmt", "", "statement text path for the exec operation")
	flag.StringVar(&target, "target", "", "qualified target object for ledger queries")
	flag.Int64Var(&opID, "id", 0, "operation id for status/cancel")
	flag.IntVar(&days, "days", 7, "history window in days")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	f, err := os.Open(cfgPath)
	if err != nil {
		fatalf("open config: %v", err)
	}
	var p config.Profile
	err = json.NewDecoder(f).Decode(&p)
	f.Close()
	if err != nil {
		fatalf("decode config: %v", err)
	}

	// Validate profile config.
	issues := config.ValidateProfile(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	initMetrics(p, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()

	led, err := ledger.Open(ctx, p.Ledger.Path)
	if err != nil {
		fatalf("open ledger: %v", err)
	}
	defer led.Close()

	// Ledger-only operations skip the target connection entirely.
	switch op {
	case "status", "history", "summary", "errors", "cancel", "sweep":
		if err := runLedgerOp(ctx, led, p, op, target, opID, days); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	exec, err := storage.Open(ctx, storage.Config{Kind: p.Target.Kind, DSN: p.Target.DSN})
	if err != nil {
		fatalf("open target: %v", err)
	}
	defer exec.Close()

	orch := evolve.New(exec, led)

	if *verbose {
		log.Printf("profile: name=%s target=%s ledger=%s op=%s",
			p.Name, p.Target.Kind, p.Ledger.Path, op)
	}

	start := time.Now()
	id, err := runWorkflow(ctx, orch, p, op, paramsPath, stmtPath, target)
	if id != 0 {
		log.Printf("operation id=%d", id)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// initMetrics installs the configured metrics backend; the nop backend stays
// in place when metrics are disabled or construction fails.
func initMetrics(p config.Profile, verbose bool) {
	jobName := p.Name
	if jobName == "" {
		jobName = "ddlforge"
	}

	switch p.Metrics.Backend {
	case "pushgateway":
		gwURL := p.Metrics.GatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: url=%v, backend=pushgateway, job_name=%v", gwURL, jobName)
		}
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.StatsdAddr,
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		if verbose {
			log.Printf("metrics: addr=%v, backend=datadog, job_name=%v", p.Metrics.StatsdAddr, jobName)
		}
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", p.Metrics.Backend)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", p.Metrics.Backend)
	}
}

// moveParams mirrors evolve.MoveParams with JSON tags and a seconds-based
// timeout.
type moveParams struct {
	Owner          string   `json:"owner"`
	Table          string   `json:"table"`
	Partition      string   `json:"partition"`
	Tablespace     string   `json:"tablespace"`
	Parallel       int      `json:"parallel"`
	Online         bool     `json:"online"`
	Indexes        []string `json:"indexes"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

type migrateParams struct {
	Def            ddl.TableDef `json:"def"`
	KeyColumn      string       `json:"key_column"`
	BatchSize      int          `json:"batch_size"`
	Parallel       int          `json:"parallel"`
	Resume         bool         `json:"resume"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}

type convertParams struct {
	Def            ddl.TableDef         `json:"def"`
	Sub            ddl.SubpartitionSpec `json:"sub"`
	Mode           string               `json:"mode"`
	KeyColumn      string               `json:"key_column"`
	BatchSize      int                  `json:"batch_size"`
	Parallel       int                  `json:"parallel"`
	TimeoutSeconds int                  `json:"timeout_seconds"`
}

type removeColumnsParams struct {
	Owner          string   `json:"owner"`
	Table          string   `json:"table"`
	Columns        []string `json:"columns"`
	Constraints    []string `json:"constraints"`
	Indexes        []string `json:"indexes"`
	Checkpoint     int      `json:"checkpoint"`
	Parallel       int      `json:"parallel"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// runWorkflow dispatches a data-changing operation to the orchestrator and
// returns the ledger operation id.
func runWorkflow(ctx context.Context, orch *evolve.Orchestrator, p config.Profile, op, paramsPath, stmtPath, target string) (int64, error) {
	d := p.Defaults

	switch op {
	case "move":
		var mp moveParams
		if err := loadParams(paramsPath, &mp); err != nil {
			return 0, err
		}
		return orch.Move(ctx, evolve.MoveParams{
			Owner:      owner(mp.Owner, p),
			Table:      mp.Table,
			Partition:  mp.Partition,
			Tablespace: mp.Tablespace,
			Parallel:   fallback(mp.Parallel, d.Parallel),
			Online:     mp.Online,
			Indexes:    mp.Indexes,
			Timeout:    timeout(mp.TimeoutSeconds, d),
		})

	case "migrate":
		var mp migrateParams
		if err := loadParams(paramsPath, &mp); err != nil {
			return 0, err
		}
		mp.Def.Owner = owner(mp.Def.Owner, p)
		return orch.Migrate(ctx, evolve.MigrateParams{
			Def:       mp.Def,
			KeyColumn: mp.KeyColumn,
			BatchSize: fallback(mp.BatchSize, d.BatchSize),
			Parallel:  fallback(mp.Parallel, d.Parallel),
			Resume:    mp.Resume,
			Timeout:   timeout(mp.TimeoutSeconds, d),
		})

	case "convert":
		var cp convertParams
		if err := loadParams(paramsPath, &cp); err != nil {
			return 0, err
		}
		cp.Def.Owner = owner(cp.Def.Owner, p)
		return orch.ConvertSubpartitions(ctx, evolve.ConvertParams{
			Def:       cp.Def,
			Sub:       cp.Sub,
			Mode:      ddl.ConvertMode(cp.Mode),
			KeyColumn: cp.KeyColumn,
			BatchSize: fallback(cp.BatchSize, d.BatchSize),
			Parallel:  fallback(cp.Parallel, d.Parallel),
			Timeout:   timeout(cp.TimeoutSeconds, d),
		})

	case "remove-columns":
		var rp removeColumnsParams
		if err := loadParams(paramsPath, &rp); err != nil {
			return 0, err
		}
		return orch.RemoveColumns(ctx, evolve.RemoveColumnsParams{
			Owner:                owner(rp.Owner, p),
			Table:                rp.Table,
			Columns:              rp.Columns,
			DependentConstraints: rp.Constraints,
			DependentIndexes:     rp.Indexes,
			Checkpoint:           fallback(rp.Checkpoint, d.Checkpoint),
			Parallel:             fallback(rp.Parallel, d.Parallel),
			Timeout:              timeout(rp.TimeoutSeconds, d),
		})

	case "exec":
		if stmtPath == "" {
			return 0, fmt.Errorf("exec requires -stmt")
		}
		if target == "" {
			return 0, fmt.Errorf("exec requires -target")
		}
		b, err := os.ReadFile(stmtPath)
		if err != nil {
			return 0, fmt.Errorf("read statement: %w", err)
		}
		return orch.ExecuteDDL(ctx, target, string(b))

	case "":
		return 0, fmt.Errorf("-op is required")
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}
}

// runLedgerOp answers ledger queries and maintenance commands.
func runLedgerOp(ctx context.Context, led *ledger.Ledger, p config.Profile, op, target string, opID int64, days int) error {
	switch op {
	case "status":
		if opID == 0 {
			return fmt.Errorf("status requires -id")
		}
		rec, err := led.Status(ctx, opID)
		if err != nil {
			return err
		}
		return printJSON(rec)

	case "history":
		if target == "" {
			return fmt.Errorf("history requires -target")
		}
		recs, err := led.History(ctx, target, days)
		if err != nil {
			return err
		}
		return printJSON(recs)

	case "summary":
		sum, err := led.PerformanceSummary(ctx, target, "")
		if err != nil {
			return err
		}
		return printJSON(sum)

	case "errors":
		since := time.Now().AddDate(0, 0, -days)
		counts, err := led.ErrorSummary(ctx, since)
		if err != nil {
			return err
		}
		return printJSON(counts)

	case "cancel":
		if opID == 0 {
			return fmt.Errorf("cancel requires -id")
		}
		if err := led.RequestCancel(ctx, opID); err != nil {
			return err
		}
		log.Printf("cancellation requested for operation %d", opID)
		return nil

	case "sweep":
		if p.Ledger.RetentionDays <= 0 {
			return fmt.Errorf("sweep requires ledger.retention_days > 0")
		}
		n, err := led.Sweep(ctx, time.Duration(p.Ledger.RetentionDays)*24*time.Hour)
		if err != nil {
			return err
		}
		log.Printf("swept %d terminal records older than %d days", n, p.Ledger.RetentionDays)
		return nil
	}
	return fmt.Errorf("unknown ledger operation %q", op)
}

func loadParams(path string, v any) error {
	if path == "" {
		return fmt.Errorf("this operation requires -params")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read params: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// owner applies the profile's default owner when the params leave it empty.
func owner(o string, p config.Profile) string {
	if o != "" {
		return o
	}
	return p.Target.Owner
}

func fallback(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func timeout(seconds int, d config.Defaults) time.Duration {
	if seconds <= 0 {
		seconds = d.TimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
