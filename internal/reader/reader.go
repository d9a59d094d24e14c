// Package reader issues the dialect-specific, partition-filtered,
// primary-key-ordered SELECT that feeds the merge-walker with one side of a
// reconciliation pass.
package reader

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/dbreconciler/tablesync/internal/dialect"
	"github.com/dbreconciler/tablesync/internal/partition"
	"github.com/dbreconciler/tablesync/internal/value"
)

// Spec names everything the Reader needs to build and bind its query. The
// logical->physical column map must have identical logical key sets on
// source and destination, enforced by the caller (the config layer).
type Spec struct {
	Schema      string
	Table       string
	Columns     map[string]string // logical -> physical
	PrimaryKey  string            // logical name
	YearColumn  string
	MonthColumn string
	WeekColumn  string // empty if the partitioning has no week dimension
	BatchSize   int
	Limit       int    // 0 means unlimited
	RecordPK    string // non-empty restricts the read to a single primary-key value, for --record
}

// Reader streams rows for one partition from one database connection,
// re-keyed from physical to logical column names, in ascending primary-key
// order.
type Reader struct {
	db   *sql.DB
	dial dialect.Dialect
	spec Spec
}

// New builds a Reader bound to db under dial, reading per spec.
func New(db *sql.DB, dial dialect.Dialect, spec Spec) *Reader {
	return &Reader{db: db, dial: dial, spec: spec}
}

// logicalOrder returns the spec's logical column names in a fixed,
// deterministic order with the primary key first, so SELECT projections
// line up between source and destination regardless of map iteration
// order.
func (r *Reader) logicalOrder() []string {
	cols := make([]string, 0, len(r.spec.Columns))
	for c := range r.spec.Columns {
		if c != r.spec.PrimaryKey {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	return append([]string{r.spec.PrimaryKey}, cols...)
}

// buildQuery constructs the partition-filtered, PK-ordered SELECT and its
// bound parameters for p.
func (r *Reader) buildQuery(p partition.Descriptor, logical []string) (string, []any) {
	physical := make([]string, len(logical))
	for i, c := range logical {
		physical[i] = r.dial.QuoteIdent(r.spec.Columns[c])
	}

	fullTable := r.spec.Table
	if r.spec.Schema != "" {
		fullTable = r.spec.Schema + "." + r.spec.Table
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE %s = %s AND %s = %s",
		strings.Join(physical, ", "), fullTable,
		r.dial.QuoteIdent(r.spec.YearColumn), r.dial.Placeholder(1),
		r.dial.QuoteIdent(r.spec.MonthColumn), r.dial.Placeholder(2),
	)
	params := []any{p.Year, p.Month}

	if p.Week != nil && r.spec.WeekColumn != "" {
		fmt.Fprintf(&b, " AND %s = %s", r.dial.QuoteIdent(r.spec.WeekColumn), r.dial.Placeholder(3))
		params = append(params, *p.Week)
	}

	if r.spec.RecordPK != "" {
		fmt.Fprintf(&b, " AND %s = %s",
			r.dial.QuoteIdent(r.spec.Columns[r.spec.PrimaryKey]), r.dial.Placeholder(len(params)+1))
		params = append(params, r.spec.RecordPK)
	}

	fmt.Fprintf(&b, " ORDER BY %s", r.dial.QuoteIdent(r.spec.Columns[r.spec.PrimaryKey]))

	query := b.String()
	if r.spec.Limit > 0 {
		query = r.dial.Paginate(query, r.spec.Limit)
	}
	return query, params
}

// Stream runs the query for partition p and invokes emit once per row as
// *sql.Rows yields it, stopping at the first error emit returns or at ctx
// cancellation. spec.BatchSize is not read here: fetch sizes are left to the
// database/sql driver.
func (r *Reader) Stream(ctx context.Context, p partition.Descriptor, emit func(value.Row) error) error {
	logical := r.logicalOrder()
	query, params := r.buildQuery(p, logical)

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("querying partition %s: %w", p, err)
	}
	defer rows.Close()

	scanned := make([]any, len(logical))
	scanPtrs := make([]any, len(logical))
	for i := range scanned {
		scanPtrs[i] = &scanned[i]
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("scanning partition %s: %w", p, err)
		}
		row := make(value.Row, len(logical))
		for i, col := range logical {
			row[col] = value.FromAny(scanned[i])
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
