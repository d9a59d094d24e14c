package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/dbreconciler/tablesync/internal/value"
)

type sliceSource struct {
	rows []value.Row
	i    int
}

func (s *sliceSource) Next() (value.Row, bool, error) {
	if s.i >= len(s.rows) {
		return nil, false, nil
	}
	r := s.rows[s.i]
	s.i++
	return r, true, nil
}

func rowsByID(ids ...int) []value.Row {
	out := make([]value.Row, len(ids))
	for i, id := range ids {
		out[i] = value.Row{"id": value.NewInt(int64(id))}
	}
	return out
}

func TestWalkIdenticalStreamsEmitsOnlyMatch(t *testing.T) {
	src := &sliceSource{rows: rowsByID(1, 2, 3)}
	dest := &sliceSource{rows: rowsByID(1, 2, 3)}

	var events []Event
	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(e Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Kind != Match {
			t.Fatalf("expected only Match events, got %+v", e)
		}
	}
}

func TestWalkMissingAndExtra(t *testing.T) {
	src := &sliceSource{rows: rowsByID(1, 2, 3)}
	dest := &sliceSource{rows: rowsByID(2, 3, 4)}

	var missing, extra, match int
	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(e Event) error {
		switch e.Kind {
		case MissingInDest:
			missing++
		case ExtraInDest:
			extra++
		case Match:
			match++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != 1 || extra != 1 || match != 2 {
		t.Fatalf("expected 1 missing, 1 extra, 2 match; got missing=%d extra=%d match=%d", missing, extra, match)
	}
}

func TestWalkEmptySourceAllExtra(t *testing.T) {
	src := &sliceSource{}
	dest := &sliceSource{rows: rowsByID(1, 2)}

	var extra int
	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(e Event) error {
		if e.Kind != ExtraInDest {
			t.Fatalf("expected only ExtraInDest, got %+v", e)
		}
		extra++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extra != 2 {
		t.Fatalf("expected 2 extra events, got %d", extra)
	}
}

func TestWalkDetectsOutOfOrderSource(t *testing.T) {
	src := &sliceSource{rows: rowsByID(2, 1)}
	dest := &sliceSource{rows: rowsByID(1, 2)}

	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(Event) error { return nil })
	var orderErr *OrderingError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected an OrderingError, got %v", err)
	}
}

func TestWalkDetectsKeyTypeMismatch(t *testing.T) {
	src := &sliceSource{rows: []value.Row{{"id": value.NewInt(1)}}}
	dest := &sliceSource{rows: []value.Row{{"id": value.NewString("1")}}}

	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(Event) error { return nil })
	var tmErr *TypeMismatchError
	if !errors.As(err, &tmErr) {
		t.Fatalf("expected a TypeMismatchError, got %v", err)
	}
}

func TestWalkStopsOnEmitError(t *testing.T) {
	src := &sliceSource{rows: rowsByID(1, 2)}
	dest := &sliceSource{rows: rowsByID(1, 2)}

	boom := errors.New("boom")
	calls := 0
	err := Walk(context.Background(), src, dest, KeyFunc("id"), func(Event) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected emit to stop after first error, got %d calls", calls)
	}
}
