package dialect

import "testing"

func TestForNameResolvesKnownDialects(t *testing.T) {
	ora, ok := ForName("oracle")
	if !ok || ora.Name() != "oracle" {
		t.Fatalf("expected oracle dialect, got %+v ok=%v", ora, ok)
	}
	ms, ok := ForName("sqlserver")
	if !ok || ms.Name() != "sqlserver" {
		t.Fatalf("expected sqlserver dialect, got %+v ok=%v", ms, ok)
	}
}

func TestForNameRejectsUnknown(t *testing.T) {
	if _, ok := ForName("mysql"); ok {
		t.Fatalf("expected mysql to be unsupported")
	}
}

func TestOraclePlaceholdersAreNumbered(t *testing.T) {
	d, _ := ForName("oracle")
	if got := d.Placeholder(1); got != ":1" {
		t.Fatalf("expected :1, got %q", got)
	}
	if got := d.Placeholder(2); got != ":2" {
		t.Fatalf("expected :2, got %q", got)
	}
}

func TestSQLServerPlaceholdersAreAlwaysQuestionMark(t *testing.T) {
	d, _ := ForName("sqlserver")
	if d.Placeholder(1) != "?" || d.Placeholder(5) != "?" {
		t.Fatalf("expected ? for every position")
	}
}

func TestPaginationClauses(t *testing.T) {
	ora, _ := ForName("oracle")
	if got := ora.Paginate("SELECT * FROM t ORDER BY id", 10); got != "SELECT * FROM t ORDER BY id FETCH FIRST 10 ROWS ONLY" {
		t.Fatalf("unexpected oracle pagination: %q", got)
	}
	ms, _ := ForName("sqlserver")
	if got := ms.Paginate("SELECT * FROM t ORDER BY id", 10); got != "SELECT * FROM t ORDER BY id OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY" {
		t.Fatalf("unexpected sqlserver pagination: %q", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	ora, _ := ForName("oracle")
	if ora.QuoteIdent("Col") != `"Col"` {
		t.Fatalf("unexpected oracle quoting: %q", ora.QuoteIdent("Col"))
	}
	ms, _ := ForName("sqlserver")
	if ms.QuoteIdent("Col") != "[Col]" {
		t.Fatalf("unexpected sqlserver quoting: %q", ms.QuoteIdent("Col"))
	}
}
