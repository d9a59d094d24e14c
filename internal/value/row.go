package value

// Row is a mapping from logical column name to value. Row records are
// immutable after construction — callers must not mutate a Row once it has
// been handed to the merge-walker or comparator.
type Row map[string]Value

// Get returns the value at the logical column, or the null sentinel if the
// column is absent (e.g. a logical column present on one side only).
func (r Row) Get(column string) Value {
	if v, ok := r[column]; ok {
		return v
	}
	return NewNull()
}
