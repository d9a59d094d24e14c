// Package rowhash computes the deterministic row fingerprint used by the
// comparator and dispatcher as a fast-path skip.
package rowhash

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dbreconciler/tablesync/internal/value"
)

// Hash computes a 64-bit fingerprint of row over the given logical columns,
// always in sorted logical-name order (never map iteration order), joining
// normalized values with "|". Rows whose values have equal Normalize forms on
// every column hash equal. value.ValuesEqual is looser than Normalize in two
// places, so rows it accepts can still hash differently: numbers within the
// tolerance that round to different five-decimal forms (0.000004 and
// 0.000006), and a Bytes value against a numeric String with the same text.
func Hash(row value.Row, columns []string) uint64 {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	var b strings.Builder
	for i, col := range sorted {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(value.Normalize(row.Get(col)))
	}
	return xxhash.Sum64String(b.String())
}

// HexString renders a Hash result as the fixed-width hex fingerprint stored
// in discrepancy records' source_hash/dest_hash fields.
func HexString(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
