// Command fix-mismatches runs the repair executor standalone: for each
// configured (or explicitly selected) partition, it reads back recorded
// mismatches and issues the set-based UPDATE/DELETE pass against the
// destination.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/dbreconciler/tablesync/internal/config"
	"github.com/dbreconciler/tablesync/internal/errs"
	"github.com/dbreconciler/tablesync/internal/logging"
	"github.com/dbreconciler/tablesync/internal/partition"
	"github.com/dbreconciler/tablesync/internal/repair"
	"github.com/dbreconciler/tablesync/internal/wiring"
)

var version string

type options struct {
	Config    string `long:"config" description:"path to the config YAML file" default:"config/config.yaml"`
	Apply     bool   `long:"apply" description:"execute updates instead of dry run"`
	Partition string `long:"partition" description:"restrict the repair pass to a single YYYY-MM partition" value-name:"YYYY-MM"`
	PasswordPrompt bool `long:"password-prompt" description:"force a password prompt for the destination connection, overriding its configured env var"`
	Help      bool   `long:"help" description:"show this help"`
	Version   bool   `long:"version" description:"show this version"`
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

	log := logging.Init(cfg.Debug)
	log.Info("starting repair pass", "config", opts.Config, "apply", opts.Apply)

	if err := run(cfg, opts, log); err != nil {
		fail(log, err)
	}
}

func fail(log *slog.Logger, err error) {
	code := errs.KindRepair.ExitCode()
	if classified, ok := err.(*errs.Error); ok {
		code = classified.Kind.ExitCode()
	}
	if log != nil {
		log.Error("repair pass failed", "error", err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func run(cfg *config.Config, opts *options, log *slog.Logger) error {
	ctx := context.Background()

	password := ""
	var err error
	if opts.PasswordPrompt {
		password, err = wiring.PromptPassword("Destination password")
		if err != nil {
			return err
		}
	}
	destDB, destDial, err := wiring.OpenSideWithPassword(cfg.Destination, password)
	if err != nil {
		return err
	}
	defer destDB.Close()

	partitions, err := resolvePartitions(cfg, opts.Partition)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		log.Warn("no partitions to repair")
		return nil
	}

	spec := repair.Spec{
		DestSchema:   cfg.Destination.Schema,
		DestTable:    cfg.Destination.Table,
		DestColumns:  cfg.Destination.Columns,
		PrimaryKey:   cfg.PrimaryKey,
		YearColumn:   cfg.Destination.Columns[cfg.Partitioning.YearColumn],
		MonthColumn:  cfg.Destination.Columns[cfg.Partitioning.MonthColumn],
		WeekColumn:   cfg.Destination.Columns[cfg.Partitioning.WeekColumn],
		OutputSchema: cfg.Output.Schema,
		OutputTable:  cfg.Output.Table,
		DryRun:       !opts.Apply,
		SkipNulls:    cfg.Updates.SkipNulls,
	}
	exec := repair.New(destDB, destDial, spec, log)

	var repairErr error
	for _, p := range partitions {
		results, err := exec.Run(ctx, p)
		if err != nil {
			log.Error("repair failed for partition", "partition", p.String(), "error", err)
			repairErr = err
			continue
		}
		var totalApplied int64
		for _, r := range results {
			if r.Err != nil {
				log.Warn("repair column failed", "partition", p.String(), "column", r.Column, "error", r.Err)
				continue
			}
			totalApplied += r.Applied
			fmt.Printf("partition %s: column %s: %d rows updated\n", p, r.Column, r.Applied)
		}
		fmt.Printf("partition %s: %d total rows updated\n", p, totalApplied)
	}
	if repairErr != nil {
		return errs.Wrap(errs.KindRepair, repairErr)
	}
	return nil
}

// resolvePartitions returns the configured scope's partitions, restricted
// to a single YYYY-MM when selector is non-empty. A selector that matches
// no configured partition is a ConfigError: --partition names a filter
// over the configured scope, not an arbitrary ad-hoc one.
func resolvePartitions(cfg *config.Config, selector string) ([]partition.Descriptor, error) {
	scope := make([]partition.ScopeEntry, len(cfg.Partitioning.Scope))
	for i, s := range cfg.Partitioning.Scope {
		scope[i] = partition.ScopeEntry{Year: s.Year, Month: s.Month, Weeks: s.Weeks}
	}
	all := partition.Enumerate(scope)
	if selector == "" {
		return all, nil
	}

	parts := strings.SplitN(selector, "-", 2)
	if len(parts) != 2 {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("--partition must be YYYY-MM, got %q", selector))
	}
	year, month := parts[0], parts[1]

	var filtered []partition.Descriptor
	for _, p := range all {
		if p.Year == year && p.Month == month {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("--partition %q matches no configured scope entry", selector))
	}
	return filtered, nil
}
