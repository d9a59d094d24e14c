// Package repair implements the set-based repair pass: for each logical
// column with outstanding mismatch discrepancies in a partition, it issues
// one UPDATE ... FROM ... JOIN against the destination and then deletes the
// repaired rows from the output table so the partition does not re-repair
// on the next run.
package repair

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dbreconciler/tablesync/internal/dialect"
	"github.com/dbreconciler/tablesync/internal/errs"
	"github.com/dbreconciler/tablesync/internal/partition"
)

// Spec names everything the Executor needs to build its join predicates.
type Spec struct {
	DestSchema  string
	DestTable   string
	DestColumns map[string]string // logical -> physical, destination side
	PrimaryKey  string             // logical name
	YearColumn  string             // destination physical year column
	MonthColumn string             // destination physical month column
	WeekColumn  string             // destination physical week column, empty if none

	OutputSchema string
	OutputTable  string

	DryRun    bool
	SkipNulls bool
}

// ColumnResult reports the outcome of repairing one logical column.
type ColumnResult struct {
	Column  string
	Applied int64
	Err     error
}

// Executor runs the repair pass against dest using dial for SQL syntax, and
// deletes repaired rows from the output table reachable via the same
// connection (both tables live on the destination side).
type Executor struct {
	db   *sql.DB
	dial dialect.Dialect
	spec Spec
	log  *slog.Logger
}

// New builds an Executor bound to db under dial, per spec.
func New(db *sql.DB, dial dialect.Dialect, spec Spec, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{db: db, dial: dial, spec: spec, log: log}
}

func (e *Executor) fullDest() string    { return e.fullTable(e.spec.DestSchema, e.spec.DestTable) }
func (e *Executor) fullOutput() string  { return e.fullTable(e.spec.OutputSchema, e.spec.OutputTable) }
func (e *Executor) fullTable(schema, table string) string {
	if schema == "" {
		return e.dial.QuoteIdent(table)
	}
	return e.dial.QuoteIdent(schema) + "." + e.dial.QuoteIdent(table)
}

// Run repairs every logical column that has outstanding mismatch
// discrepancies in p, one column at a time, committing each column's
// UPDATE and DELETE as an independent unit so that a failure on one column
// never blocks the others. It returns one ColumnResult per column
// attempted, in the order the distinct-column query returned them (an
// unspecified but deterministic order per spec).
func (e *Executor) Run(ctx context.Context, p partition.Descriptor) ([]ColumnResult, error) {
	cols, err := e.distinctMismatchColumns(ctx, p)
	if err != nil {
		return nil, errs.Wrap(errs.KindRepair, fmt.Errorf("listing mismatched columns for partition %s: %w", p, err))
	}

	var results []ColumnResult
	for _, col := range cols {
		n, err := e.repairColumn(ctx, p, col)
		results = append(results, ColumnResult{Column: col, Applied: n, Err: err})
		if err != nil {
			e.log.Warn("repair: column failed, continuing with remaining columns",
				"partition", p.String(), "column", col, "error", err)
		}
	}
	return results, nil
}

func (e *Executor) distinctMismatchColumns(ctx context.Context, p partition.Descriptor) ([]string, error) {
	where, params := e.partitionPredicate(p, "")
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ORDER BY %s",
		e.dial.QuoteIdent("column"), e.fullOutput(), strings.Join(where, " AND "),
		e.dial.QuoteIdent("column"))

	rows, err := e.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// partitionPredicate builds the type='mismatch' + partition-coordinate
// WHERE clauses shared by every query this Executor issues, binding
// placeholders starting at position 1. alias, when non-empty, qualifies
// the output-table column references (e.g. "src.").
func (e *Executor) partitionPredicate(p partition.Descriptor, alias string) ([]string, []any) {
	q := func(name string) string { return alias + e.dial.QuoteIdent(name) }
	where := []string{fmt.Sprintf("%s = '%s'", q("type"), "mismatch")}
	var params []any
	n := 0
	next := func() string { n++; return e.dial.Placeholder(n) }

	where = append(where, fmt.Sprintf("%s = %s", q("year"), next()))
	params = append(params, p.Year)
	where = append(where, fmt.Sprintf("%s = %s", q("month"), next()))
	params = append(params, p.Month)
	if p.Week != nil {
		where = append(where, fmt.Sprintf("%s = %s", q("week"), next()))
		params = append(params, *p.Week)
	}
	return where, params
}

// joinClause builds the dest/src join predicate shared by the UPDATE and
// DELETE statements for one column.
func (e *Executor) joinClause() string {
	pkCol := e.dial.QuoteIdent(e.spec.DestColumns[e.spec.PrimaryKey])
	yearCol := e.dial.QuoteIdent(e.spec.YearColumn)
	monthCol := e.dial.QuoteIdent(e.spec.MonthColumn)

	parts := []string{
		fmt.Sprintf("dest.%s = src.%s", pkCol, e.dial.QuoteIdent("primary_key")),
		fmt.Sprintf("dest.%s = src.%s", yearCol, e.dial.QuoteIdent("year")),
		fmt.Sprintf("dest.%s = src.%s", monthCol, e.dial.QuoteIdent("month")),
	}
	if e.spec.WeekColumn != "" {
		weekCol := e.dial.QuoteIdent(e.spec.WeekColumn)
		parts = append(parts, fmt.Sprintf("dest.%s = src.%s", weekCol, e.dial.QuoteIdent("week")))
	}
	return strings.Join(parts, " AND ")
}

// repairColumn issues the UPDATE for one logical column, then the DELETE
// that removes the now-repaired rows from the output table, committing the
// two together as one transaction for this column per spec.md's "commit per
// column" rule.
func (e *Executor) repairColumn(ctx context.Context, p partition.Descriptor, col string) (int64, error) {
	destCol, ok := e.spec.DestColumns[col]
	if !ok {
		return 0, fmt.Errorf("column %q has no destination mapping", col)
	}

	where, params := e.partitionPredicate(p, "src.")
	where = append(where, fmt.Sprintf("src.%s = %s", e.dial.QuoteIdent("column"), e.dial.Placeholder(len(params)+1)))
	params = append(params, col)
	if e.spec.SkipNulls {
		where = append(where, fmt.Sprintf(
			"src.%s IS NOT NULL AND src.%s <> ''",
			e.dial.QuoteIdent("source_value"), e.dial.QuoteIdent("source_value")))
	}

	join := e.joinClause()
	updateSQL := fmt.Sprintf(
		"UPDATE dest SET dest.%s = src.%s FROM %s dest JOIN %s src ON %s WHERE %s",
		e.dial.QuoteIdent(destCol), e.dial.QuoteIdent("source_value"),
		e.fullDest(), e.fullOutput(), join, strings.Join(where, " AND "),
	)
	deleteSQL := fmt.Sprintf(
		"DELETE src FROM %s src JOIN %s dest ON %s WHERE %s",
		e.fullOutput(), e.fullDest(), join, strings.Join(where, " AND "),
	)

	if e.spec.DryRun {
		e.log.Info("repair dry-run", "update_sql", updateSQL, "params", params)
		e.log.Info("repair dry-run", "delete_sql", deleteSQL, "params", params)
		return 0, nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning repair transaction for column %s: %w", col, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, updateSQL, params...)
	if err != nil {
		return 0, fmt.Errorf("updating column %s: %w", col, err)
	}
	affected, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, deleteSQL, params...); err != nil {
		return 0, fmt.Errorf("deleting repaired output rows for column %s: %w", col, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing repair for column %s: %w", col, err)
	}
	return affected, nil
}
