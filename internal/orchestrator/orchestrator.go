// Package orchestrator sequences the per-partition pipeline: two readers
// feeding the merge-walker, match events fanned out to the comparison
// dispatcher, every discrepancy routed to the sink, and the repair pass
// run once the partition's sink flush completes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dbreconciler/tablesync/internal/compare"
	"github.com/dbreconciler/tablesync/internal/errs"
	"github.com/dbreconciler/tablesync/internal/merge"
	"github.com/dbreconciler/tablesync/internal/partition"
	"github.com/dbreconciler/tablesync/internal/sink"
	"github.com/dbreconciler/tablesync/internal/value"
)

// RowStreamer is satisfied by *reader.Reader; narrowed to an interface so
// the orchestrator can be driven by in-memory fakes in tests.
type RowStreamer interface {
	Stream(ctx context.Context, p partition.Descriptor, emit func(value.Row) error) error
}

// Sink is satisfied by *sink.Sink.
type Sink interface {
	Write(ctx context.Context, record sink.Record) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repairer is satisfied by *repair.Executor.
type Repairer interface {
	Run(ctx context.Context, p partition.Descriptor) ([]RepairResult, error)
}

// RepairResult mirrors repair.ColumnResult without importing the repair
// package, so orchestrator stays decoupled from its concrete
// implementation (matched by the adapter in cmd/reconcile).
type RepairResult struct {
	Column  string
	Applied int64
	Err     error
}

// PartitionPipeline bundles everything one partition's pass needs: both
// readers, the shared comparison policy, the sink, and the repair
// executor. A fresh PartitionPipeline (new Readers, new Sink, new
// Repairer) is built per partition by the Orchestrator's Factory; in
// cmd/reconcile the Readers of every partition share the same two *sql.DB
// pools.
type PartitionPipeline struct {
	SourceReader RowStreamer
	DestReader   RowStreamer
	PrimaryKey   string
	Columns      []string
	Dispatch     compare.Dispatcher
	Sink         Sink
	Repair       Repairer
}

// Orchestrator drives a configured sequence of partitions through a
// PartitionPipeline built per partition by Factory.
type Orchestrator struct {
	Partitions []partition.Descriptor
	Factory    func(p partition.Descriptor) (*PartitionPipeline, error)
	MaxWorkers int // bound on concurrent partitions; <=1 means serial
	ContinueOnError bool
	Log        *slog.Logger
}

// PartitionOutcome reports what happened running one partition.
type PartitionOutcome struct {
	Partition partition.Descriptor
	Err       error
	Repairs   []RepairResult
}

// Run executes every configured partition, building a pipeline per
// partition via Factory, and returns one PartitionOutcome per partition in
// enumeration order. If MaxWorkers > 1, partitions run concurrently bounded
// by that limit; results are still returned in enumeration order.
func (o *Orchestrator) Run(ctx context.Context) ([]PartitionOutcome, error) {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}

	outcomes := make([]PartitionOutcome, len(o.Partitions))
	limit := o.MaxWorkers
	if limit < 1 {
		limit = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, p := range o.Partitions {
		i, p := i, p
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				outcomes[i] = PartitionOutcome{Partition: p, Err: err}
				return nil
			}
			outcome := o.runOne(egCtx, p, log)
			outcomes[i] = outcome
			if outcome.Err != nil && !o.ContinueOnError {
				return outcome.Err
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// runOne runs the full pipeline for a single partition: stream both readers
// through the merge-walker, fan MATCH events to the dispatcher, route every
// discrepancy kind to the sink, flush, then repair.
func (o *Orchestrator) runOne(ctx context.Context, p partition.Descriptor, log *slog.Logger) PartitionOutcome {
	pipe, err := o.Factory(p)
	if err != nil {
		log.Error("partition failed: building pipeline", "partition", p.String(), "error", err)
		return PartitionOutcome{Partition: p, Err: err}
	}

	if err := runMergeAndCompare(ctx, pipe, p); err != nil {
		log.Error("partition failed", "partition", p.String(), "error", err)
		return PartitionOutcome{Partition: p, Err: err}
	}

	if err := pipe.Sink.Flush(ctx); err != nil {
		log.Error("partition failed: flushing sink", "partition", p.String(), "error", err)
		return PartitionOutcome{Partition: p, Err: errs.Wrap(errs.KindSink, err)}
	}

	if pipe.Repair == nil {
		return PartitionOutcome{Partition: p}
	}
	results, err := pipe.Repair.Run(ctx, p)
	if err != nil {
		log.Error("partition repair failed", "partition", p.String(), "error", err)
		return PartitionOutcome{Partition: p, Err: errs.Wrap(errs.KindRepair, err), Repairs: results}
	}
	return PartitionOutcome{Partition: p, Repairs: results}
}

// handoffBuffer is the bounded two-element handoff between a reader's fetch
// loop and the merge-walker's consumption of it (spec.md §5): small enough
// that a slow consumer applies real backpressure to the producing reader,
// large enough that one side's batch boundary doesn't stall the other.
const handoffBuffer = 2

// runMergeAndCompare streams both sides of the partition through the
// merge-walker with constant memory: each reader runs in its own goroutine
// feeding a bounded channel, the walker co-iterates the two channels and
// routes MATCH pairs onto a bounded channel for the comparison dispatcher
// while MISSING/EXTRA events and the dispatcher's mismatches all funnel
// through one record channel into a single sink-writing goroutine — the
// "one consolidated emitting path" spec.md §5 requires of the sink.
func runMergeAndCompare(ctx context.Context, pipe *PartitionPipeline, p partition.Descriptor) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcCh := streamRows(runCtx, pipe.SourceReader, p)
	destCh := streamRows(runCtx, pipe.DestReader, p)

	pairCh := make(chan compare.Pair, handoffBuffer)
	recordCh := make(chan sink.Record, handoffBuffer)

	eg, egCtx := errgroup.WithContext(runCtx)

	// The sole sink-writing goroutine: every discrepancy, whether routed
	// directly by the merge-walker or surfaced by the dispatcher, is
	// written here and only here.
	eg.Go(func() error {
		for rec := range recordCh {
			if err := pipe.Sink.Write(egCtx, rec); err != nil {
				return err
			}
		}
		return nil
	})

	eg.Go(func() error {
		defer close(pairCh)
		walkErr := merge.Walk(egCtx, newChannelCursor(srcCh), newChannelCursor(destCh), merge.KeyFunc(pipe.PrimaryKey), func(ev merge.Event) error {
			switch ev.Kind {
			case merge.Match:
				select {
				case pairCh <- compare.Pair{Source: ev.Source, Dest: ev.Dest}:
					return nil
				case <-egCtx.Done():
					return egCtx.Err()
				}
			case merge.MissingInDest:
				select {
				case recordCh <- missingRecord(ev.Source, pipe.PrimaryKey, p):
					return nil
				case <-egCtx.Done():
					return egCtx.Err()
				}
			case merge.ExtraInDest:
				select {
				case recordCh <- extraRecord(ev.Dest, pipe.PrimaryKey, p):
					return nil
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
			return nil
		})
		return classifyMergeErr(walkErr)
	})

	eg.Go(func() error {
		defer close(recordCh)
		pk := pipe.PrimaryKey
		return pipe.Dispatch.Run(egCtx, pairCh, func(res compare.Result) error {
			key := res.Pair.Source.Get(pk).String()
			for _, diff := range res.Diffs {
				select {
				case recordCh <- mismatchRecord(key, diff, p):
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
			return nil
		})
	})

	if err := eg.Wait(); err != nil {
		return classifyPipelineErr(p, err)
	}
	return nil
}

func classifyMergeErr(err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *merge.OrderingError:
		return errs.Wrap(errs.KindOrdering, err)
	case *merge.TypeMismatchError:
		return errs.Wrap(errs.KindTypeMismatchOnKey, err)
	default:
		return err
	}
}

// classifyPipelineErr wraps an already-classified errs.Error as-is and
// otherwise attributes a bare error (a reader/dispatcher/sink failure) to
// KindQuery, matching spec.md §7's "QueryError during read — fail the
// partition" policy for anything not already carrying a more specific kind.
func classifyPipelineErr(p partition.Descriptor, err error) error {
	if _, ok := err.(*errs.Error); ok {
		return err
	}
	return errs.Wrap(errs.KindQuery, fmt.Errorf("partition %s: %w", p, err))
}

// streamRows runs streamer.Stream on its own goroutine, forwarding each row
// (or the terminal error) onto a handoffBuffer-sized channel. The goroutine
// exits once the channel is drained and closed, whether that happens
// because the reader finished, errored, or ctx was cancelled.
func streamRows(ctx context.Context, streamer RowStreamer, p partition.Descriptor) <-chan rowOrErr {
	out := make(chan rowOrErr, handoffBuffer)
	go func() {
		defer close(out)
		err := streamer.Stream(ctx, p, func(r value.Row) error {
			select {
			case out <- rowOrErr{row: r}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case out <- rowOrErr{err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

type rowOrErr struct {
	row value.Row
	err error
}

// newChannelCursor adapts a streamRows channel into a merge.RowSource, so
// the merge-walker co-iterates two live producer goroutines instead of two
// materialized slices.
func newChannelCursor(ch <-chan rowOrErr) merge.RowSource {
	return &channelCursor{ch: ch}
}

type channelCursor struct {
	ch <-chan rowOrErr
}

func (c *channelCursor) Next() (value.Row, bool, error) {
	re, ok := <-c.ch
	if !ok {
		return nil, false, nil
	}
	if re.err != nil {
		return nil, false, re.err
	}
	return re.row, true, nil
}

func missingRecord(src value.Row, pk string, p partition.Descriptor) sink.Record {
	r := sink.Record{PrimaryKey: src.Get(pk).String(), Type: sink.MissingInDest, Year: p.Year, Month: p.Month}
	if p.Week != nil {
		r.Week = *p.Week
	}
	return r
}

func extraRecord(dest value.Row, pk string, p partition.Descriptor) sink.Record {
	r := sink.Record{PrimaryKey: dest.Get(pk).String(), Type: sink.ExtraInDest, Year: p.Year, Month: p.Month}
	if p.Week != nil {
		r.Week = *p.Week
	}
	return r
}

func mismatchRecord(pk string, diff compare.ColumnDiff, p partition.Descriptor) sink.Record {
	r := sink.Record{
		PrimaryKey: pk,
		Type:       sink.Mismatch,
		Column:     diff.Column,
		SourceVal:  diff.SourceValue.String(),
		DestVal:    diff.DestValue.String(),
		SourceHash: diff.SourceHash,
		DestHash:   diff.DestHash,
		Year:       p.Year,
		Month:      p.Month,
	}
	if p.Week != nil {
		r.Week = *p.Week
	}
	return r
}
