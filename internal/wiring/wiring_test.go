package wiring

import (
	"testing"

	"github.com/dbreconciler/tablesync/internal/config"
)

func TestConnOptionsForUsesDefaultPortWhenUnset(t *testing.T) {
	t.Setenv("SRC_HOST", "dbhost")
	t.Setenv("SRC_USER", "svc")
	t.Setenv("SRC_PASSWORD", "secret")

	tc := config.TableConfig{
		Schema: "dbo",
		Env:    map[string]string{"host": "SRC_HOST", "user": "SRC_USER", "password": "SRC_PASSWORD"},
	}
	tc.Connection = map[string]string{"host": "dbhost", "user": "svc", "password": "secret"}

	opts := ConnOptionsFor(tc, DefaultPort("oracle"))
	if opts.Host != "dbhost" || opts.User != "svc" || opts.Password != "secret" {
		t.Fatalf("unexpected opts: %+v", opts)
	}
	if opts.Port != 1521 {
		t.Fatalf("expected the oracle default port, got %d", opts.Port)
	}
}

func TestConnOptionsForHonorsExplicitPort(t *testing.T) {
	tc := config.TableConfig{Connection: map[string]string{"port": "9999"}}
	opts := ConnOptionsFor(tc, 1433)
	if opts.Port != 9999 {
		t.Fatalf("expected explicit port to win, got %d", opts.Port)
	}
}

func TestDefaultPortKnownDialects(t *testing.T) {
	if DefaultPort("oracle") != 1521 {
		t.Fatalf("unexpected oracle default port")
	}
	if DefaultPort("sqlserver") != 1433 {
		t.Fatalf("unexpected sqlserver default port")
	}
	if DefaultPort("mysql") != 0 {
		t.Fatalf("expected 0 for an unknown dialect")
	}
}

func TestResolveWorkersAutoFallsBackToNumCPU(t *testing.T) {
	if got := ResolveWorkers("auto", 4); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if got := ResolveWorkers("", 8); got != 8 {
		t.Fatalf("expected 8 for empty workers string, got %d", got)
	}
}

func TestResolveWorkersExplicitInteger(t *testing.T) {
	if got := ResolveWorkers("6", 4); got != 6 {
		t.Fatalf("expected explicit worker count 6, got %d", got)
	}
}

func TestResolveWorkersInvalidFallsBackToOne(t *testing.T) {
	if got := ResolveWorkers("nonsense", 4); got != 1 {
		t.Fatalf("expected fallback to 1 for an invalid worker count, got %d", got)
	}
}

func TestOpenSideRejectsUnknownDialect(t *testing.T) {
	_, _, err := OpenSide(config.TableConfig{Type: "mysql"})
	if err == nil {
		t.Fatalf("expected an error for an unsupported dialect")
	}
}
