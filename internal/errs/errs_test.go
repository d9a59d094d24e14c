package errs

import (
	"errors"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	cases := map[Kind]int{
		KindConfig:  1,
		KindConnect: 2,
		KindQuery:   3,
		KindOrdering: 3,
		KindSink:     3,
		KindRepair:   3,
	}
	for kind, want := range cases {
		if got := kind.ExitCode(); got != want {
			t.Fatalf("%s: expected exit code %d, got %d", kind, want, got)
		}
	}
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindSink, cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(KindSink, nil) != nil {
		t.Fatalf("expected Wrap(nil) to return nil")
	}
}

func TestMostSevereOrdersByConfigFirst(t *testing.T) {
	worst, ok := MostSevere([]Kind{KindRepair, KindSink, KindConfig, KindQuery})
	if !ok || worst != KindConfig {
		t.Fatalf("expected ConfigError to be most severe, got %v ok=%v", worst, ok)
	}
}

func TestMostSevereEmptyIsNotOK(t *testing.T) {
	if _, ok := MostSevere(nil); ok {
		t.Fatalf("expected ok=false for an empty kind list")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(KindQuery, errors.New("connection reset"))
	if got := err.Error(); got == "" {
		t.Fatalf("expected a non-empty error string")
	}
}
