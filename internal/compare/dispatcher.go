package compare

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dbreconciler/tablesync/internal/rowhash"
	"github.com/dbreconciler/tablesync/internal/value"
)

// Mode selects how a stream of row pairs is compared.
type Mode int

const (
	// ModeSerial compares one pair at a time on the calling goroutine.
	ModeSerial Mode = iota
	// ModeParallel compares each pair concurrently, bounded by Workers.
	ModeParallel
	// ModeBatch hash-filters pairs in fixed-size chunks first, then
	// compares only the surviving (hash-mismatched) pairs concurrently.
	ModeBatch
)

// Pair is one source/destination row matched by the merge-walker.
type Pair struct {
	Source value.Row
	Dest   value.Row
}

// Result pairs a Pair's origin with its comparison outcome.
type Result struct {
	Pair  Pair
	Diffs []ColumnDiff
}

// batchChunkSize bounds how many pairs ModeBatch accumulates before running
// its hash-filter phase, so the two-phase mode never holds a whole
// partition's match set in memory at once.
const batchChunkSize = 500

// Dispatcher drives CompareRow over a channel of Pairs under the configured
// Mode and worker bound, mirroring the teacher's errgroup-backed bounded
// worker pool. Run never holds more than a bounded amount of in-flight work:
// callers stream pairs in over a channel instead of handing over a slice.
type Dispatcher struct {
	Mode    Mode
	Workers int
	Columns []string
	Opts    Options
}

// Run consumes pairs until it is closed or ctx is cancelled, calling emit
// once per pair whose comparison produced a non-empty Diffs. emit is always
// invoked from a single logical path — never concurrently — even under
// ModeParallel/ModeBatch, so a non-thread-safe emit (e.g. a sink.Sink.Write)
// is safe to pass directly. Stopping ctx drains in-flight workers and stops
// emission; the first error from a worker or from emit is returned.
func (d Dispatcher) Run(ctx context.Context, pairs <-chan Pair, emit func(Result) error) error {
	switch d.Mode {
	case ModeSerial:
		return d.runSerial(ctx, pairs, emit)
	case ModeBatch:
		return d.runBatch(ctx, pairs, emit)
	default:
		return d.runParallel(ctx, pairs, emit)
	}
}

func (d Dispatcher) runSerial(ctx context.Context, pairs <-chan Pair, emit func(Result) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-pairs:
			if !ok {
				return nil
			}
			if diffs := CompareRow(p.Source, p.Dest, d.Columns, d.Opts); len(diffs) > 0 {
				if err := emit(Result{Pair: p, Diffs: diffs}); err != nil {
					return err
				}
			}
		}
	}
}

func (d Dispatcher) runParallel(ctx context.Context, pairs <-chan Pair, emit func(Result) error) error {
	return d.fanOut(ctx, pairs, d.Opts, emit)
}

// runBatch computes row hashes for fixed-size chunks of the incoming stream
// (cheap, CPU-only), discards hash-equal pairs without ever touching
// per-column comparison, then compares each chunk's survivors concurrently
// before pulling the next chunk — unifying the source's "two-phase" and
// "batch" parallel modes per spec.md's open-question resolution.
func (d Dispatcher) runBatch(ctx context.Context, pairs <-chan Pair, emit func(Result) error) error {
	opts := d.Opts
	opts.UseRowHash = false // hash filtering already happens below

	chunk := make([]Pair, 0, batchChunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		survivors := make(chan Pair, len(chunk))
		for _, p := range chunk {
			if rowhash.Hash(p.Source, d.Columns) != rowhash.Hash(p.Dest, d.Columns) {
				survivors <- p
			}
		}
		close(survivors)
		chunk = chunk[:0]
		return d.fanOut(ctx, survivors, opts, emit)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-pairs:
			if !ok {
				return flush()
			}
			chunk = append(chunk, p)
			if len(chunk) >= batchChunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// fanOut drains pairs through a bounded pool of CompareRow workers and
// funnels every non-empty Result through a single consolidating goroutine
// that calls emit, so emit is never invoked from more than one goroutine at
// a time regardless of how many workers are comparing concurrently.
func (d Dispatcher) fanOut(ctx context.Context, pairs <-chan Pair, opts Options, emit func(Result) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, workerLimit(d.Workers))
	var emitErr error
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for r := range results {
			if emitErr != nil {
				continue // keep draining so workers never block on a full channel
			}
			if err := emit(r); err != nil {
				emitErr = err
				cancel()
			}
		}
	}()

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.SetLimit(workerLimit(d.Workers))

consume:
	for {
		select {
		case <-egCtx.Done():
			break consume
		case p, ok := <-pairs:
			if !ok {
				break consume
			}
			p := p
			eg.Go(func() error {
				if diffs := CompareRow(p.Source, p.Dest, d.Columns, opts); len(diffs) > 0 {
					select {
					case results <- Result{Pair: p, Diffs: diffs}:
					case <-egCtx.Done():
					}
				}
				return nil
			})
		}
	}

	err := eg.Wait()
	close(results)
	<-drained

	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && emitErr == nil {
		return ctxErr
	}
	return emitErr
}

func workerLimit(workers int) int {
	if workers <= 0 {
		return 1
	}
	return workers
}
