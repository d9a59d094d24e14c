package value

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValuesEqualNumericTolerance(t *testing.T) {
	// Scenario A: Decimal("-265.23") vs -265.230000 must compare equal.
	src := NewDecimal(decimal.RequireFromString("-265.23"))
	dest := NewFloat(-265.230000)
	if !ValuesEqual(src, dest) {
		t.Fatalf("expected numeric tolerance to suppress the diff")
	}
}

func TestValuesEqualDateVsDatetime(t *testing.T) {
	// Scenario B: date-only equality across a datetime and a bare date.
	src := NewString("2020-10-04 00:00:00.0000000")
	dest := NewString("2020-10-04")
	if !ValuesEqual(src, dest) {
		t.Fatalf("expected date-only comparison to suppress the diff")
	}
}

func TestValuesEqualStringFallback(t *testing.T) {
	if !ValuesEqual(NewString(" b "), NewString("b")) {
		t.Fatalf("expected trimmed string equality")
	}
	if ValuesEqual(NewString("b"), NewString("c")) {
		t.Fatalf("expected b != c")
	}
}

func TestValuesEqualNullHandling(t *testing.T) {
	if !ValuesEqual(NewNull(), NewNull()) {
		t.Fatalf("null should equal null")
	}
	if ValuesEqual(NewNull(), NewString("x")) {
		t.Fatalf("null should not equal a non-null value")
	}
	if ValuesEqual(NewNull(), NewString("")) {
		t.Fatalf("null-or-empty-string equivalence is scoped to the repair executor's skip_nulls guard, not general value equality")
	}
}

func TestValuesEqualReflexive(t *testing.T) {
	vals := []Value{
		NewNull(),
		NewInt(42),
		NewFloat(3.14),
		NewDecimal(decimal.RequireFromString("12.345")),
		NewString("hello"),
		NewDate(time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)),
		NewDatetime(time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	for _, v := range vals {
		if !ValuesEqual(v, v) {
			t.Fatalf("expected %v to equal itself", v)
		}
	}
}

func TestNormalizeRespectsEquivalence(t *testing.T) {
	// values_equal(a, b) => values_equal(normalize(a), normalize(b))
	a := NewDecimal(decimal.RequireFromString("-265.23"))
	b := NewFloat(-265.230000)
	if !ValuesEqual(a, b) {
		t.Fatalf("precondition failed")
	}
	na, nb := NewString(Normalize(a)), NewString(Normalize(b))
	if !ValuesEqual(na, nb) {
		t.Fatalf("normalized forms must remain equal")
	}
}

func TestNumericTransitivity(t *testing.T) {
	a := NewFloat(1.000001)
	b := NewFloat(1.000005)
	c := NewFloat(1.000009)
	if !ValuesEqual(a, b) || !ValuesEqual(b, c) {
		t.Skip("tolerance boundary not met for this triple")
	}
	if !ValuesEqual(a, c) {
		t.Fatalf("expected transitivity within the numeric tolerance class")
	}
}
