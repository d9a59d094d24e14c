// Package testutils provides small in-memory fakes for the interfaces the
// pipeline stages consume, so tests can exercise the orchestrator and
// dispatcher without a live database — mirroring cmd/testutils's role in
// the teacher repo as shared test scaffolding, but built on fakes instead
// of a live sqlcmd/docker database, since these tests run without external
// services.
package testutils

import (
	"context"

	"github.com/dbreconciler/tablesync/internal/orchestrator"
	"github.com/dbreconciler/tablesync/internal/partition"
	"github.com/dbreconciler/tablesync/internal/sink"
	"github.com/dbreconciler/tablesync/internal/value"
)

// FakeStreamer emits a fixed slice of rows for every partition it is asked
// to stream, regardless of which partition is requested, satisfying
// orchestrator.RowStreamer.
type FakeStreamer struct {
	Rows []value.Row
	Err  error
}

func (f *FakeStreamer) Stream(_ context.Context, _ partition.Descriptor, emit func(value.Row) error) error {
	if f.Err != nil {
		return f.Err
	}
	for _, r := range f.Rows {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

// FakeSink records every written record in memory, satisfying
// orchestrator.Sink without touching a database.
type FakeSink struct {
	Written    []sink.Record
	FlushCount int
	ClosedN    int
	WriteErr   error
	FlushErr   error
}

func (f *FakeSink) Write(_ context.Context, record sink.Record) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Written = append(f.Written, record)
	return nil
}

func (f *FakeSink) Flush(_ context.Context) error {
	f.FlushCount++
	return f.FlushErr
}

func (f *FakeSink) Close(ctx context.Context) error {
	f.ClosedN++
	return f.Flush(ctx)
}

// FakeRepairer records which partitions it was asked to repair and returns
// a canned result, satisfying orchestrator.Repairer.
type FakeRepairer struct {
	Results []orchestrator.RepairResult
	Err     error
	Calls   []partition.Descriptor
}

func (f *FakeRepairer) Run(_ context.Context, p partition.Descriptor) ([]orchestrator.RepairResult, error) {
	f.Calls = append(f.Calls, p)
	return f.Results, f.Err
}

// KeyedRow builds a value.Row holding pkValue under pk plus each entry of
// cols as a string value, a convenience for constructing partition fixtures
// tersely.
func KeyedRow(pk string, pkValue int64, cols map[string]string) value.Row {
	row := value.Row{pk: value.NewInt(pkValue)}
	for k, v := range cols {
		row[k] = value.NewString(v)
	}
	return row
}
