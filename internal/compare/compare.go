// Package compare implements column-by-column row comparison and the
// concurrent dispatch of that comparison over a stream of matched row
// pairs.
package compare

import (
	"github.com/dbreconciler/tablesync/internal/rowhash"
	"github.com/dbreconciler/tablesync/internal/value"
)

// ColumnDiff is a single column-level discrepancy between a source and
// destination row.
type ColumnDiff struct {
	Column      string
	SourceValue value.Value
	DestValue   value.Value
	SourceHash  string
	DestHash    string
}

// Options controls CompareRow's behavior.
type Options struct {
	// UseRowHash enables the row-level hash fast path: when the source and
	// destination row hash equal, the column-by-column scan is skipped
	// entirely and no ColumnDiffs are produced.
	UseRowHash bool

	// OnlyColumns restricts comparison to this column subset. A nil or
	// empty slice means "compare every column in the map".
	OnlyColumns []string

	// IncludeNulls, when false (the default), suppresses a diff when
	// either side's value is null — a column that is null or absent on
	// either side never produces a mismatch. An empty string is not null.
	IncludeNulls bool
}

// CompareRow compares src and dest across columns, honoring opts, and
// returns one ColumnDiff per column that differs. A nil/empty result means
// the rows are equivalent under the configured rules.
func CompareRow(src, dest value.Row, columns []string, opts Options) []ColumnDiff {
	cols := columns
	if len(opts.OnlyColumns) > 0 {
		cols = intersect(columns, opts.OnlyColumns)
	}

	var srcHash, destHash string
	if opts.UseRowHash {
		srcHash = rowhash.HexString(rowhash.Hash(src, cols))
		destHash = rowhash.HexString(rowhash.Hash(dest, cols))
		if srcHash == destHash {
			return nil
		}
	}

	var diffs []ColumnDiff
	for _, col := range cols {
		sv := src.Get(col)
		dv := dest.Get(col)
		if !opts.IncludeNulls && (sv.IsNull() || dv.IsNull()) {
			continue
		}
		if !value.ValuesEqual(sv, dv) {
			d := ColumnDiff{Column: col, SourceValue: sv, DestValue: dv}
			if opts.UseRowHash {
				d.SourceHash = srcHash
				d.DestHash = destHash
			}
			diffs = append(diffs, d)
		}
	}
	return diffs
}

func intersect(all, only []string) []string {
	want := make(map[string]bool, len(only))
	for _, c := range only {
		want[c] = true
	}
	out := make([]string, 0, len(only))
	for _, c := range all {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}
