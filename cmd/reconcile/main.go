// Command reconcile runs the partition-driven reconciliation pipeline:
// for every configured partition, it co-walks source and destination,
// classifies discrepancies, and persists them to the output table.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"

	"github.com/jessevdk/go-flags"

	"github.com/dbreconciler/tablesync/internal/compare"
	"github.com/dbreconciler/tablesync/internal/config"
	"github.com/dbreconciler/tablesync/internal/dialect"
	"github.com/dbreconciler/tablesync/internal/errs"
	"github.com/dbreconciler/tablesync/internal/logging"
	"github.com/dbreconciler/tablesync/internal/orchestrator"
	"github.com/dbreconciler/tablesync/internal/partition"
	"github.com/dbreconciler/tablesync/internal/reader"
	"github.com/dbreconciler/tablesync/internal/repair"
	"github.com/dbreconciler/tablesync/internal/sink"
	"github.com/dbreconciler/tablesync/internal/wiring"
)

var version string

type options struct {
	Config           string `long:"config" description:"path to the config YAML file" default:"config/config.yaml"`
	Debug            string `long:"debug" optional:"yes" optional-value:"high" choice:"low" choice:"medium" choice:"high" description:"set debug level"`
	Limit            int    `long:"limit" description:"maximum number of rows to fetch per table"`
	OutputMismatches bool   `long:"output-mismatches" description:"print discrepancy records to stdout"`
	Record           string `long:"record" description:"process only the record with this primary key value"`
	DestPasswordPrompt bool `long:"dest-password-prompt" description:"force a password prompt for the destination connection, overriding its configured env var"`
	Help             bool   `long:"help" description:"show this help"`
	Version          bool   `long:"version" description:"show this version"`
}

func parseOptions(args []string) *options {
	var opts options
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[options]"
	if _, err := parser.ParseArgs(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.KindConfig.ExitCode())
	}
	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}
	return &opts
}

func main() {
	opts := parseOptions(os.Args[1:])

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fail(nil, err)
	}
	if opts.Debug != "" {
		cfg.Debug = opts.Debug
	}
	if opts.Limit > 0 {
		cfg.Limit = opts.Limit
	}

	log := logging.Init(cfg.Debug)
	log.Info("starting reconciliation run", "config", opts.Config)

	if err := run(cfg, opts, log); err != nil {
		fail(log, err)
	}
}

func fail(log *slog.Logger, err error) {
	code := errs.KindQuery.ExitCode()
	if classified, ok := err.(*errs.Error); ok {
		code = classified.Kind.ExitCode()
	}
	if log != nil {
		log.Error("reconciliation run failed", "error", err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func run(cfg *config.Config, opts *options, log *slog.Logger) error {
	ctx := context.Background()

	srcDB, srcDial, err := wiring.OpenSide(cfg.Source)
	if err != nil {
		return err
	}
	defer srcDB.Close()

	destPassword := ""
	if opts.DestPasswordPrompt {
		destPassword, err = wiring.PromptPassword("Destination password")
		if err != nil {
			return err
		}
	}
	destDB, destDial, err := wiring.OpenSideWithPassword(cfg.Destination, destPassword)
	if err != nil {
		return err
	}
	defer destDB.Close()

	scope := make([]partition.ScopeEntry, len(cfg.Partitioning.Scope))
	for i, s := range cfg.Partitioning.Scope {
		scope[i] = partition.ScopeEntry{Year: s.Year, Month: s.Month, Weeks: s.Weeks}
	}
	partitions := partition.Enumerate(scope)
	if len(partitions) == 0 {
		log.Warn("no partitions configured; nothing to do")
		return nil
	}

	columns := sortedColumnNames(cfg.Source.Columns)
	workers := wiring.ResolveWorkers(cfg.Comparison.Workers, runtime.NumCPU())
	mode := dispatchMode(cfg.Comparison)

	orch := &orchestrator.Orchestrator{
		Partitions:      partitions,
		MaxWorkers:      maxPartitionWorkers(cfg),
		ContinueOnError: cfg.ContinueOnPartitionError,
		Log:             log,
		Factory: func(p partition.Descriptor) (*orchestrator.PartitionPipeline, error) {
			// A fresh Sink per partition: spec.md §5 scopes "Sink: single
			// instance per partition run" and concurrent partitions
			// (MaxWorkers > 1) must never share one Sink's unsynchronized
			// buffer across goroutines.
			discrepancySink := sink.New(destDB, destDial, cfg.Output.Schema, cfg.Output.Table, 500)
			return buildPipeline(srcDB, srcDial, destDB, destDial, cfg, opts, columns, workers, mode, discrepancySink, log, p)
		},
	}

	outcomes, runErr := orch.Run(ctx)
	reportOutcomes(log, outcomes, opts.OutputMismatches)
	if runErr != nil {
		return runErr
	}

	var kinds []errs.Kind
	for _, o := range outcomes {
		if classified, ok := o.Err.(*errs.Error); ok {
			kinds = append(kinds, classified.Kind)
		}
	}
	if worst, ok := errs.MostSevere(kinds); ok {
		return errs.New(worst, "one or more partitions failed")
	}
	return nil
}

func buildPipeline(
	srcDB *sql.DB, srcDial dialect.Dialect,
	destDB *sql.DB, destDial dialect.Dialect,
	cfg *config.Config, opts *options,
	columns []string, workers int, mode compare.Mode,
	discrepancySink *sink.Sink, log *slog.Logger,
	p partition.Descriptor,
) (*orchestrator.PartitionPipeline, error) {
	srcReader := reader.New(srcDB, srcDial, readerSpec(cfg.Source, cfg, opts, columns))
	destReader := reader.New(destDB, destDial, readerSpec(cfg.Destination, cfg, opts, columns))

	repairSpec := repair.Spec{
		DestSchema:   cfg.Destination.Schema,
		DestTable:    cfg.Destination.Table,
		DestColumns:  cfg.Destination.Columns,
		PrimaryKey:   cfg.PrimaryKey,
		YearColumn:   cfg.Destination.Columns[cfg.Partitioning.YearColumn],
		MonthColumn:  cfg.Destination.Columns[cfg.Partitioning.MonthColumn],
		WeekColumn:   cfg.Destination.Columns[cfg.Partitioning.WeekColumn],
		OutputSchema: cfg.Output.Schema,
		OutputTable:  cfg.Output.Table,
		DryRun:       cfg.Updates.DryRun,
		SkipNulls:    cfg.Updates.SkipNulls,
	}

	return &orchestrator.PartitionPipeline{
		SourceReader: srcReader,
		DestReader:   destReader,
		PrimaryKey:   cfg.PrimaryKey,
		Columns:      columns,
		Dispatch: compare.Dispatcher{
			Mode:    mode,
			Workers: workers,
			Columns: columns,
			Opts: compare.Options{
				UseRowHash:   cfg.Comparison.UseRowHash,
				OnlyColumns:  cfg.Comparison.OnlyColumns,
				IncludeNulls: cfg.Comparison.IncludeNulls,
			},
		},
		Sink:   wrapSink(discrepancySink, opts.OutputMismatches),
		Repair: &repairAdapter{exec: repair.New(destDB, destDial, repairSpec, log)},
	}, nil
}

// wrapSink optionally echoes every discrepancy record to stdout as it is
// written, for --output-mismatches, without changing the sink's
// persistence behavior.
func wrapSink(s *sink.Sink, printRecords bool) orchestrator.Sink {
	if !printRecords {
		return s
	}
	return &printingSink{Sink: s}
}

type printingSink struct {
	*sink.Sink
}

func (p *printingSink) Write(ctx context.Context, record sink.Record) error {
	fmt.Printf("%s pk=%s column=%s source=%q dest=%q\n",
		record.Type, record.PrimaryKey, record.Column, record.SourceVal, record.DestVal)
	return p.Sink.Write(ctx, record)
}

func readerSpec(side config.TableConfig, cfg *config.Config, opts *options, columns []string) reader.Spec {
	return reader.Spec{
		Schema:      side.Schema,
		Table:       side.Table,
		Columns:     side.Columns,
		PrimaryKey:  cfg.PrimaryKey,
		YearColumn:  side.Columns[cfg.Partitioning.YearColumn],
		MonthColumn: side.Columns[cfg.Partitioning.MonthColumn],
		WeekColumn:  side.Columns[cfg.Partitioning.WeekColumn],
		BatchSize:   500,
		Limit:       cfg.Limit,
		RecordPK:    opts.Record,
	}
}

func dispatchMode(c config.ComparisonConfig) compare.Mode {
	switch {
	case c.TwoPhase || c.ParallelMode == "batch":
		return compare.ModeBatch
	case c.Parallel:
		return compare.ModeParallel
	default:
		return compare.ModeSerial
	}
}

func maxPartitionWorkers(cfg *config.Config) int {
	if cfg.MaxPartitionWorkers > 0 {
		return cfg.MaxPartitionWorkers
	}
	return 1
}

func sortedColumnNames(columns map[string]string) []string {
	names := make([]string, 0, len(columns))
	for c := range columns {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

func reportOutcomes(log *slog.Logger, outcomes []orchestrator.PartitionOutcome, printMismatches bool) {
	for _, o := range outcomes {
		if o.Err != nil {
			log.Error("partition result", "partition", o.Partition.String(), "error", o.Err)
			continue
		}
		log.Info("partition result", "partition", o.Partition.String(), "repaired_columns", len(o.Repairs))
		if printMismatches {
			for _, r := range o.Repairs {
				fmt.Printf("%s: column=%s applied=%d err=%v\n", o.Partition, r.Column, r.Applied, r.Err)
			}
		}
	}
}

// repairAdapter converts repair.Executor's []repair.ColumnResult into
// []orchestrator.RepairResult, keeping internal/orchestrator free of a
// direct dependency on internal/repair's concrete type.
type repairAdapter struct {
	exec *repair.Executor
}

func (a *repairAdapter) Run(ctx context.Context, p partition.Descriptor) ([]orchestrator.RepairResult, error) {
	results, err := a.exec.Run(ctx, p)
	out := make([]orchestrator.RepairResult, len(results))
	for i, r := range results {
		out[i] = orchestrator.RepairResult{Column: r.Column, Applied: r.Applied, Err: r.Err}
	}
	return out, err
}
