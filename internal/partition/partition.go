// Package partition expands a configured reconciliation scope into an
// ordered sequence of partition descriptors.
package partition

import "fmt"

// Descriptor identifies a single partition scope. It is immutable and
// compared by exact string equality.
type Descriptor struct {
	Year  string
	Month string
	Week  *string // nil when the scope has no week dimension
}

// String renders a descriptor for logs and error messages, e.g. "2021-01"
// or "2021-01/w3".
func (d Descriptor) String() string {
	if d.Week != nil {
		return fmt.Sprintf("%s-%s/w%s", d.Year, d.Month, *d.Week)
	}
	return fmt.Sprintf("%s-%s", d.Year, d.Month)
}

// ScopeEntry is one element of the configured partitioning.scope list.
type ScopeEntry struct {
	Year  string
	Month int
	Weeks []string // empty means "no week dimension"
}

// Enumerate expands scope into partition descriptors, preserving input
// order and, within an entry, emitting one descriptor per week when Weeks
// is non-empty or a single week-less descriptor otherwise.
func Enumerate(scope []ScopeEntry) []Descriptor {
	var out []Descriptor
	for _, entry := range scope {
		month := fmt.Sprintf("%02d", entry.Month)
		if len(entry.Weeks) == 0 {
			out = append(out, Descriptor{Year: entry.Year, Month: month})
			continue
		}
		for _, w := range entry.Weeks {
			week := w
			out = append(out, Descriptor{Year: entry.Year, Month: month, Week: &week})
		}
	}
	return out
}
