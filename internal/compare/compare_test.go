package compare

import (
	"testing"

	"github.com/dbreconciler/tablesync/internal/value"
)

func TestCompareRowFindsMismatch(t *testing.T) {
	src := value.Row{"id": value.NewInt(1), "name": value.NewString("alice")}
	dest := value.Row{"id": value.NewInt(1), "name": value.NewString("alicia")}

	diffs := CompareRow(src, dest, []string{"id", "name"}, Options{})
	if len(diffs) != 1 || diffs[0].Column != "name" {
		t.Fatalf("expected a single mismatch on name, got %+v", diffs)
	}
}

func TestCompareRowHashFastPathSkipsIdenticalRows(t *testing.T) {
	src := value.Row{"id": value.NewInt(1), "name": value.NewString("alice")}
	dest := value.Row{"id": value.NewInt(1), "name": value.NewString("alice")}

	diffs := CompareRow(src, dest, []string{"id", "name"}, Options{UseRowHash: true})
	if len(diffs) != 0 {
		t.Fatalf("expected no diffs for identical rows, got %+v", diffs)
	}
}

func TestCompareRowSuppressesNullsByDefault(t *testing.T) {
	src := value.Row{"id": value.NewInt(1), "note": value.NewNull()}
	dest := value.Row{"id": value.NewInt(1)} // note absent -> null

	diffs := CompareRow(src, dest, []string{"id", "note"}, Options{})
	if len(diffs) != 0 {
		t.Fatalf("expected null-vs-null (and null-vs-absent) to produce no diff, got %+v", diffs)
	}
}

func TestCompareRowOnlyColumnsFilter(t *testing.T) {
	src := value.Row{"id": value.NewInt(1), "a": value.NewString("x"), "b": value.NewString("x")}
	dest := value.Row{"id": value.NewInt(1), "a": value.NewString("y"), "b": value.NewString("y")}

	diffs := CompareRow(src, dest, []string{"id", "a", "b"}, Options{OnlyColumns: []string{"a"}})
	if len(diffs) != 1 || diffs[0].Column != "a" {
		t.Fatalf("expected only column a to be compared, got %+v", diffs)
	}
}

func TestCompareRowEquivalentValuesProduceNoDiff(t *testing.T) {
	src := value.Row{"id": value.NewInt(1), "amount": value.NewFloat(-265.230000)}
	dest := value.Row{"id": value.NewInt(1), "amount": value.NewString("-265.23")}

	diffs := CompareRow(src, dest, []string{"id", "amount"}, Options{})
	if len(diffs) != 0 {
		t.Fatalf("expected numeric-tolerance-equivalent values to not produce a diff, got %+v", diffs)
	}
}
