// Package value implements the dynamic row-value union and the
// cross-dialect equivalence rules used to compare source and destination
// rows: numeric tolerance, date-only comparison, and trimmed string
// fallback.
package value

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the concrete type carried by a Value.
type Kind int

const (
	Null Kind = iota
	Int
	Float
	Dec
	String
	Date
	Datetime
	Bytes
)

// Value is a tagged union over a row cell's possible physical
// representations: the core never assumes a concrete type for a cell and
// instead dispatches on Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Dec   decimal.Decimal
	Str   string
	Time  time.Time
	Bytes []byte
}

func NewNull() Value                { return Value{Kind: Null} }
func NewInt(v int64) Value          { return Value{Kind: Int, Int: v} }
func NewFloat(v float64) Value      { return Value{Kind: Float, Float: v} }
func NewDecimal(v decimal.Decimal) Value { return Value{Kind: Dec, Dec: v} }
func NewString(v string) Value      { return Value{Kind: String, Str: v} }
func NewDate(v time.Time) Value     { return Value{Kind: Date, Time: v} }
func NewDatetime(v time.Time) Value { return Value{Kind: Datetime, Time: v} }
func NewBytes(v []byte) Value       { return Value{Kind: Bytes, Bytes: v} }

// FromAny converts a value scanned out of database/sql (or decoded from
// YAML/JSON) into the tagged union. It never errors: anything it cannot
// classify more precisely becomes a String via fmt.Sprintf.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return NewNull()
	case Value:
		return t
	case int:
		return NewInt(int64(t))
	case int32:
		return NewInt(int64(t))
	case int64:
		return NewInt(t)
	case float32:
		return NewFloat(float64(t))
	case float64:
		return NewFloat(t)
	case decimal.Decimal:
		return NewDecimal(t)
	case string:
		return NewString(t)
	case []byte:
		return NewBytes(t)
	case time.Time:
		return NewDatetime(t)
	case bool:
		if t {
			return NewString("true")
		}
		return NewString("false")
	default:
		return NewString(fmt.Sprintf("%v", t))
	}
}

// IsNull reports whether v is the true null sentinel. It does not treat an
// empty or blank string as null: that narrower equivalence belongs only to
// the Repair Executor's skip_nulls guard (internal/repair), matching
// original_source/scripts/fix_mismatches.py's `IS NOT NULL AND <> ''`
// check, not general value equality or comparator null suppression.
func (v Value) IsNull() bool {
	return v.Kind == Null
}

// asString renders v the way a dialect driver would have rendered it as
// text, used as the last-resort comparison and canonicalization path.
func (v Value) asString() string {
	switch v.Kind {
	case Null:
		return ""
	case Int:
		return fmt.Sprintf("%d", v.Int)
	case Float:
		return fmt.Sprintf("%v", v.Float)
	case Dec:
		return v.Dec.String()
	case String:
		return v.Str
	case Date:
		return v.Time.Format("2006-01-02")
	case Datetime:
		return v.Time.Format("2006-01-02 15:04:05.9999999")
	case Bytes:
		return string(v.Bytes)
	default:
		return ""
	}
}

// String renders v for discrepancy records and log output.
func (v Value) String() string {
	if v.Kind == Null {
		return "<null>"
	}
	return v.asString()
}

// AsInt reports whether v carries an exact integer key value, used by the
// merge-walker to detect a primary key whose type differs incompatibly
// between source and destination (e.g. integer vs numeric-looking string).
func (v Value) AsInt() (int64, bool) {
	if v.Kind == Int {
		return v.Int, true
	}
	return 0, false
}

const numericTolerance = 1e-5

var dateLayouts = []string{
	"2006-01-02 15:04:05.9999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// asDecimal attempts to interpret v as an arbitrary-precision number.
func (v Value) asDecimal() (decimal.Decimal, bool) {
	switch v.Kind {
	case Int:
		return decimal.NewFromInt(v.Int), true
	case Float:
		return decimal.NewFromFloat(v.Float), true
	case Dec:
		return v.Dec, true
	case String:
		d, err := decimal.NewFromString(strings.TrimSpace(v.Str))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

// asDate attempts to interpret v as a calendar date, discarding time,
// sub-second, and timezone components.
func (v Value) asDate() (time.Time, bool) {
	switch v.Kind {
	case Date, Datetime:
		t := v.Time
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	case String:
		s := strings.TrimSpace(v.Str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Normalize returns the canonical representation used by both ValuesEqual
// and row hashing: null sentinel, else fixed 5-decimal-place numeric form,
// else YYYY-MM-DD date form, else trimmed string.
func Normalize(v Value) string {
	if v.IsNull() {
		return "NULL"
	}
	if d, ok := v.asDecimal(); ok {
		return d.StringFixed(5)
	}
	if t, ok := v.asDate(); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(v.asString())
}

// ValuesEqual reports whether a and b should be considered equal. The rules
// are attempted independently, and the values are equal if ANY rule
// classifies them as equal, in the order numeric tolerance, then date, then
// trimmed string — a failed rule never short-circuits the ones after it.
func ValuesEqual(a, b Value) bool {
	aNull, bNull := a.IsNull(), b.IsNull()
	if aNull || bNull {
		return aNull && bNull
	}

	if da, ok := a.asDecimal(); ok {
		if db, ok := b.asDecimal(); ok {
			if da.Sub(db).Abs().LessThan(decimal.NewFromFloat(numericTolerance)) {
				return true
			}
		}
	}

	if da, ok := a.asDate(); ok {
		if db, ok := b.asDate(); ok {
			if da.Equal(db) {
				return true
			}
		}
	}

	return strings.TrimSpace(a.asString()) == strings.TrimSpace(b.asString())
}
