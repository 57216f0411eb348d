package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/batchflow"
	"github.com/BaSui01/batchflow/checkpoint"
	"github.com/BaSui01/batchflow/types"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sessions":
		runSessions(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "prune":
		runPrune(os.Args[2:])
	case "clear-lock":
		runClearLock(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newEngine builds the engine for a CLI invocation. Metrics are
// pointless for one-shot commands, so they stay off.
func newEngine(configPath string) *batchflow.Engine {
	opts := []batchflow.Option{batchflow.WithoutMetrics()}
	if configPath != "" {
		opts = append(opts, batchflow.WithConfigFile(configPath))
	}
	bf, err := batchflow.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return bf
}

func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	asJSON := fs.Bool("json", false, "Output as JSON")
	fs.Parse(args)

	bf := newEngine(*configPath)
	defer bf.Close()

	runs, err := bf.Sessions().List(context.Background())
	if err != nil {
		fatal("list sessions", err)
	}

	if *asJSON {
		printJSON(runs)
		return
	}
	if len(runs) == 0 {
		fmt.Println("No persisted runs.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tMODE\tPROGRESS\tSTATUS\tUPDATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			run.RunID, run.Mode, run.Completed, run.TotalItems,
			runStatus(run), run.UpdatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func runStatus(run *types.RunInfo) string {
	switch {
	case run.Error != "":
		return "failed"
	case run.Finished():
		return "finished"
	default:
		return "partial"
	}
}

func runShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: batchflow show [--config path] <run-id>")
		os.Exit(1)
	}

	bf := newEngine(*configPath)
	defer bf.Close()

	snap, err := bf.Sessions().Get(context.Background(), fs.Arg(0))
	if errors.Is(err, checkpoint.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Run %q has no persisted state.\n", fs.Arg(0))
		os.Exit(1)
	}
	if err != nil {
		fatal("load run", err)
	}
	printJSON(snap)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	bf := newEngine(*configPath)
	defer bf.Close()

	stats, err := bf.Sessions().Stats(context.Background())
	if err != nil {
		fatal("collect stats", err)
	}
	printJSON(stats)
}

func runPrune(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	retention := fs.Duration("retention", 7*24*time.Hour,
		"Age past which unfinished runs are deleted")
	fs.Parse(args)

	bf := newEngine(*configPath)
	defer bf.Close()

	pruned, err := bf.Sessions().Prune(context.Background(), *retention)
	if err != nil {
		fatal("prune", err)
	}
	fmt.Printf("Pruned %d run(s).\n", pruned)
}

func runClearLock(args []string) {
	fs := flag.NewFlagSet("clear-lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: batchflow clear-lock [--config path] <run-id>")
		os.Exit(1)
	}

	bf := newEngine(*configPath)
	defer bf.Close()

	if err := bf.ClearLock(context.Background(), fs.Arg(0)); err != nil {
		fatal("clear lock", err)
	}
	fmt.Printf("Lock for run %q cleared.\n", fs.Arg(0))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode output", err)
	}
}

func printVersion() {
	fmt.Printf("batchflow %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}

func printUsage() {
	fmt.Println(`batchflow - checkpointed batch execution

Commands:
  sessions     List persisted runs
  show         Dump one run's snapshot as JSON
  stats        Aggregate run counts
  prune        Delete terminal and stale runs
  clear-lock   Force-remove an abandoned run lock
  version      Show version information
  help         Show this help`)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "Failed to %s: %v\n", what, err)
	os.Exit(1)
}
