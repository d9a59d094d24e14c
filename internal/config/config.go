// Package config loads and normalizes the YAML run configuration: source
// and destination connection descriptors, partitioning scope, comparison
// policy, and repair policy.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dbreconciler/tablesync/internal/errs"
)

// TableConfig describes one side (source or destination) of a reconciliation
// run.
type TableConfig struct {
	Type       string            `yaml:"type"`
	Schema     string            `yaml:"schema"`
	Table      string            `yaml:"table"`
	ColumnsRaw yaml.Node         `yaml:"columns"`
	Env        map[string]string `yaml:"env"`

	// Columns is the canonical logical->physical map, resolved from
	// ColumnsRaw by Load. A bare list is sugar for an identity mapping.
	Columns map[string]string `yaml:"-"`

	// Connection holds the resolved environment-variable values named by
	// Env, keyed the same way Env is keyed.
	Connection map[string]string `yaml:"-"`
}

// ScopeEntry is one element of partitioning.scope in the raw YAML.
type ScopeEntry struct {
	Year  string   `yaml:"year"`
	Month int      `yaml:"month"`
	Weeks []string `yaml:"weeks,omitempty"`
}

// PartitioningConfig describes how runs are scoped.
type PartitioningConfig struct {
	YearColumn  string      `yaml:"year_column"`
	MonthColumn string      `yaml:"month_column"`
	WeekColumn  string      `yaml:"week_column,omitempty"`
	Scope       []ScopeEntry `yaml:"scope"`
}

// OutputConfig names the discrepancy sink's target table.
type OutputConfig struct {
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
}

// ComparisonConfig controls the Row Comparator and Comparison Dispatcher.
type ComparisonConfig struct {
	UseRowHash            bool     `yaml:"use_row_hash"`
	OnlyColumns           []string `yaml:"only_columns,omitempty"`
	IncludeNulls          bool     `yaml:"include_nulls"`
	NormalizeTypes        bool     `yaml:"normalize_types"`
	Parallel              bool     `yaml:"parallel"`
	ParallelMode          string   `yaml:"parallel_mode"` // thread | process | batch; only "batch" selects its own mode, "process" runs on goroutines like "thread"
	Workers               string   `yaml:"workers"`        // integer or "auto"
	TwoPhase              bool     `yaml:"two_phase"`
	AggressiveMemoryCleanup bool   `yaml:"aggressive_memory_cleanup"`
}

// UpdatesConfig controls the Repair Executor.
type UpdatesConfig struct {
	DryRun    bool `yaml:"dry_run"`
	SkipNulls bool `yaml:"skip_nulls"`
}

// Config is the fully resolved run configuration.
type Config struct {
	Source      TableConfig        `yaml:"source"`
	Destination TableConfig        `yaml:"destination"`
	PrimaryKey  string             `yaml:"primary_key"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Output      OutputConfig       `yaml:"output"`
	Comparison  ComparisonConfig   `yaml:"comparison"`
	Updates     UpdatesConfig      `yaml:"updates"`
	Debug       string             `yaml:"debug"`
	Limit       int                `yaml:"limit,omitempty"`

	MaxPartitionWorkers int  `yaml:"max_partition_workers,omitempty"`
	ContinueOnPartitionError bool `yaml:"continue_on_partition_error,omitempty"`
}

// Load reads and fully resolves a configuration file at path: it parses the
// YAML, reduces each side's columns sugar to a canonical map, lowercases
// logical names, resolves declared env vars to their OS values, and rejects
// source and destination column maps whose logical key sets differ.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, fmt.Errorf("reading config %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, fmt.Errorf("parsing config %s: %w", path, err))
	}

	if err := resolveSide(&cfg.Source); err != nil {
		return nil, err
	}
	if err := resolveSide(&cfg.Destination); err != nil {
		return nil, err
	}

	cfg.PrimaryKey = strings.ToLower(cfg.PrimaryKey)

	if cfg.Source.Type == "" || cfg.Destination.Type == "" {
		return nil, errs.New(errs.KindConfig, "source and destination must both declare a dialect type")
	}

	for logical := range cfg.Source.Columns {
		if _, ok := cfg.Destination.Columns[logical]; !ok {
			return nil, errs.New(errs.KindConfig, fmt.Sprintf("logical column %q is declared on the source but not the destination", logical))
		}
	}
	if len(cfg.Source.Columns) != len(cfg.Destination.Columns) {
		return nil, errs.New(errs.KindConfig, "source and destination must declare the same logical columns")
	}

	return &cfg, nil
}

// resolveSide reduces a TableConfig's columns sugar and resolves its
// declared environment variables, mirroring the source's
// load_config/resolve_env_vars shape: a missing env var is a fatal
// ConfigError.
func resolveSide(t *TableConfig) error {
	cols, err := decodeColumns(t.ColumnsRaw)
	if err != nil {
		return errs.Wrap(errs.KindConfig, err)
	}
	t.Columns = cols

	t.Connection = make(map[string]string, len(t.Env))
	for logical, envName := range t.Env {
		v, ok := os.LookupEnv(envName)
		if !ok || v == "" {
			return errs.New(errs.KindConfig, fmt.Sprintf("environment variable %q is not set", envName))
		}
		t.Connection[logical] = v
	}
	return nil
}

// decodeColumns reduces the polymorphic "columns" YAML node (a list of
// logical names, or a map of logical->physical) to the canonical
// lowercased map form; list entries map to themselves.
func decodeColumns(node yaml.Node) (map[string]string, error) {
	out := make(map[string]string)
	switch node.Kind {
	case 0:
		return out, nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("decoding columns list: %w", err)
		}
		for _, n := range names {
			ln := strings.ToLower(n)
			out[ln] = ln
		}
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("decoding columns map: %w", err)
		}
		for logical, physical := range m {
			out[strings.ToLower(logical)] = physical
		}
	default:
		return nil, fmt.Errorf("unsupported columns node kind %v", node.Kind)
	}
	return out, nil
}
