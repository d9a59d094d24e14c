package compare

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dbreconciler/tablesync/internal/value"
)

func samplePairs() []Pair {
	return []Pair{
		{
			Source: value.Row{"id": value.NewInt(1), "name": value.NewString("alice")},
			Dest:   value.Row{"id": value.NewInt(1), "name": value.NewString("alice")},
		},
		{
			Source: value.Row{"id": value.NewInt(2), "name": value.NewString("bob")},
			Dest:   value.Row{"id": value.NewInt(2), "name": value.NewString("bobby")},
		},
	}
}

// chanOf streams pairs over a closed channel, mimicking the bounded handoff
// the merge-walker feeds the dispatcher in production.
func chanOf(pairs []Pair) <-chan Pair {
	ch := make(chan Pair, len(pairs))
	for _, p := range pairs {
		ch <- p
	}
	close(ch)
	return ch
}

// collect runs d.Run to completion and gathers every emitted Result,
// guarding against the fact that emit may be called from a pool goroutine.
func collect(t *testing.T, d Dispatcher, pairs []Pair) []Result {
	t.Helper()
	var mu sync.Mutex
	var out []Result
	err := d.Run(context.Background(), chanOf(pairs), func(r Result) error {
		mu.Lock()
		out = append(out, r)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestDispatcherSerialFindsOneMismatch(t *testing.T) {
	d := Dispatcher{Mode: ModeSerial, Columns: []string{"id", "name"}}
	results := collect(t, d, samplePairs())
	if len(results) != 1 || results[0].Diffs[0].Column != "name" {
		t.Fatalf("expected exactly one mismatched pair on column name, got %+v", results)
	}
}

func TestDispatcherParallelMatchesSerial(t *testing.T) {
	d := Dispatcher{Mode: ModeParallel, Workers: 4, Columns: []string{"id", "name"}}
	results := collect(t, d, samplePairs())
	if len(results) != 1 {
		t.Fatalf("expected exactly one mismatched pair, got %d", len(results))
	}
}

func TestDispatcherBatchSkipsHashEqualPairs(t *testing.T) {
	d := Dispatcher{Mode: ModeBatch, Workers: 4, Columns: []string{"id", "name"}}
	results := collect(t, d, samplePairs())
	if len(results) != 1 || results[0].Pair.Source.Get("id").Int != 2 {
		t.Fatalf("expected only the id=2 pair to survive hash filtering, got %+v", results)
	}
}

func TestDispatcherBatchHandlesEmptyInput(t *testing.T) {
	d := Dispatcher{Mode: ModeBatch, Workers: 2, Columns: []string{"id"}}
	results := collect(t, d, nil)
	if len(results) != 0 {
		t.Fatalf("expected no results for empty input, got %+v", results)
	}
}

func TestDispatcherEmitNeverCalledConcurrently(t *testing.T) {
	pairs := make([]Pair, 50)
	for i := range pairs {
		pairs[i] = Pair{
			Source: value.Row{"id": value.NewInt(int64(i)), "name": value.NewString("a")},
			Dest:   value.Row{"id": value.NewInt(int64(i)), "name": value.NewString("b")},
		}
	}
	d := Dispatcher{Mode: ModeParallel, Workers: 8, Columns: []string{"id", "name"}}

	var inEmit int32
	var mu sync.Mutex
	var violated bool
	err := d.Run(context.Background(), chanOf(pairs), func(Result) error {
		mu.Lock()
		inEmit++
		if inEmit > 1 {
			violated = true
		}
		mu.Unlock()
		mu.Lock()
		inEmit--
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violated {
		t.Fatalf("emit was invoked concurrently, expected a single consolidated emitting path")
	}
}

func TestDispatcherStopsOnEmitError(t *testing.T) {
	pairs := make([]Pair, 20)
	for i := range pairs {
		pairs[i] = Pair{
			Source: value.Row{"id": value.NewInt(int64(i)), "name": value.NewString("a")},
			Dest:   value.Row{"id": value.NewInt(int64(i)), "name": value.NewString("b")},
		}
	}
	d := Dispatcher{Mode: ModeParallel, Workers: 4, Columns: []string{"id", "name"}}
	boom := errors.New("boom")

	err := d.Run(context.Background(), chanOf(pairs), func(Result) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the emit error to propagate, got %v", err)
	}
}
