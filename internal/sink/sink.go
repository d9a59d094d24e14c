// Package sink implements the buffered, idempotent persistence of
// discrepancy records: lazy table creation, temp-staging bulk insert, and a
// MERGE upsert keyed on the discrepancy's natural identity.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dbreconciler/tablesync/internal/dialect"
	"github.com/dbreconciler/tablesync/internal/errs"
)

// Kind classifies a discrepancy record.
type Kind string

const (
	Mismatch      Kind = "mismatch"
	MissingInDest Kind = "missing_in_dest"
	ExtraInDest   Kind = "extra_in_dest"
)

// Record is one discrepancy row as persisted to the output table. Column is
// empty for the two row-level kinds.
type Record struct {
	PrimaryKey string
	Type       Kind
	Column     string
	SourceVal  string
	DestVal    string
	SourceHash string
	DestHash   string
	Year       string
	Month      string
	Week       string
}

// mergeKeyColumns is the composite upsert key, in declaration order.
var mergeKeyColumns = []string{"primary_key", "column", "year", "month", "week"}

// baseColumns is the declared schema every Sink starts with, in
// declaration order.
var baseColumns = append(append([]string{}, mergeKeyColumns...),
	"type", "source_value", "dest_value", "source_hash", "dest_hash", "record_insert_datetime")

// wideTextColumns are the non-key columns stored as unbounded text.
var wideTextColumns = map[string]bool{
	"source_value": true, "dest_value": true,
	"source_hash": true, "dest_hash": true,
	"type": true,
}

// Sink batches discrepancy records and flushes them to the output table
// once BatchSize is reached, or on an explicit Flush/Close.
type Sink struct {
	db        *sql.DB
	dial      dialect.Dialect
	schema    string
	table     string
	batchSize int

	buf          []Record
	tableEnsured bool
	columns      []string // this instance's declared schema, evolves via EnsureColumn
	flushSeq     int      // incremented per Flush, makes each staging table name unique
}

// New builds a Sink writing to schema.table through db under dial.
// batchSize is the in-memory buffer threshold that triggers an automatic
// flush.
func New(db *sql.DB, dial dialect.Dialect, schema, table string, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = 500
	}
	columns := make([]string, len(baseColumns))
	copy(columns, baseColumns)
	return &Sink{db: db, dial: dial, schema: schema, table: table, batchSize: batchSize, columns: columns}
}

func (s *Sink) fullTable() string {
	if s.schema == "" {
		return s.dial.QuoteIdent(s.table)
	}
	return s.dial.QuoteIdent(s.schema) + "." + s.dial.QuoteIdent(s.table)
}

// Write appends record to the in-memory buffer, lazily ensuring the output
// table exists first, and flushes automatically once the buffer reaches
// BatchSize.
func (s *Sink) Write(ctx context.Context, record Record) error {
	if !s.tableEnsured {
		if err := s.ensureTable(ctx); err != nil {
			return err
		}
		s.tableEnsured = true
	}
	s.buf = append(s.buf, record)
	if len(s.buf) >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	var defs []string
	for _, c := range s.columns {
		switch {
		case c == "primary_key" || c == "column":
			defs = append(defs, fmt.Sprintf("%s VARCHAR(500)", s.dial.QuoteIdent(c)))
		case c == "record_insert_datetime":
			defs = append(defs, fmt.Sprintf("%s DATETIME", s.dial.QuoteIdent(c)))
		case wideTextColumns[c]:
			defs = append(defs, fmt.Sprintf("%s NVARCHAR(MAX)", s.dial.QuoteIdent(c)))
		default:
			defs = append(defs, fmt.Sprintf("%s NVARCHAR(MAX)", s.dial.QuoteIdent(c)))
		}
	}
	stmt := fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NULL CREATE TABLE %s (%s)",
		s.objectName(), s.fullTable(), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("creating output table: %w", err))
	}
	return nil
}

// objectName renders the schema-qualified name as the plain string literal
// OBJECT_ID expects, matching database/mssql/database.go's sys.*
// introspection style rather than the non-standard CREATE TABLE IF NOT
// EXISTS (Transact-SQL has no such clause).
func (s *Sink) objectName() string {
	if s.schema == "" {
		return s.table
	}
	return s.schema + "." + s.table
}

// EnsureColumn performs schema evolution: if a record introduces a key not
// yet in the declared schema, ALTER the target to add it as NVARCHAR(MAX).
// Columns once added are never removed.
func (s *Sink) EnsureColumn(ctx context.Context, logical string) error {
	for _, c := range s.columns {
		if c == logical {
			return nil
		}
	}
	s.columns = append(s.columns, logical)
	stmt := fmt.Sprintf("ALTER TABLE %s ADD %s NVARCHAR(MAX)", s.fullTable(), s.dial.QuoteIdent(logical))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("evolving output table schema: %w", err))
	}
	return nil
}

// Flush drains the buffer: stages it in a session-scoped temp table, bulk
// inserts, then MERGEs into the target on the composite key, committing as
// a single transaction. On failure, the transaction rolls back and no
// partial MERGE is left behind.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	batch := s.buf
	s.buf = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("beginning flush transaction: %w", err))
	}
	defer tx.Rollback()

	s.flushSeq++
	staging := s.stagingTableName()
	if err := s.createStaging(ctx, tx, staging); err != nil {
		return err
	}
	if err := s.bulkInsert(ctx, tx, staging, batch); err != nil {
		return err
	}
	if err := s.merge(ctx, tx, staging); err != nil {
		return err
	}
	if err := s.dropStaging(ctx, tx, staging); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("committing flush: %w", err))
	}
	return nil
}

// stagingTableName returns a name unique to this Sink's flush: a *sql.DB
// pools and reuses connections across flushes, and a SQL Server local temp table
// (#...) outlives its transaction for the life of the session, so a fixed
// name collides with "There is already an object named '#...'" the moment
// a second flush lands on the same pooled connection.
func (s *Sink) stagingTableName() string {
	return fmt.Sprintf("#reconcile_staging_%d", s.flushSeq)
}

func (s *Sink) createStaging(ctx context.Context, tx *sql.Tx, staging string) error {
	var defs []string
	for _, c := range s.columns {
		defs = append(defs, fmt.Sprintf("%s NVARCHAR(MAX)", s.dial.QuoteIdent(c)))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", staging, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("creating staging table: %w", err))
	}
	return nil
}

func (s *Sink) bulkInsert(ctx context.Context, tx *sql.Tx, staging string, batch []Record) error {
	placeholders := make([]string, len(s.columns))
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		placeholders[i] = s.dial.Placeholder(i + 1)
		quoted[i] = s.dial.QuoteIdent(c)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		staging, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("preparing staging insert: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, recordValues(r, now, s.columns)...); err != nil {
			return errs.Wrap(errs.KindSink, fmt.Errorf("staging insert: %w", err))
		}
	}
	return nil
}

// recordValues maps r onto columns in declared order, so that schema
// evolution (EnsureColumn appending new logical columns) never desyncs the
// positional bind values from the staging table's column list.
func recordValues(r Record, insertedAt time.Time, columns []string) []any {
	fields := map[string]any{
		"primary_key":            r.PrimaryKey,
		"column":                 r.Column,
		"year":                   r.Year,
		"month":                  r.Month,
		"week":                   r.Week,
		"type":                   string(r.Type),
		"source_value":           r.SourceVal,
		"dest_value":             r.DestVal,
		"source_hash":            r.SourceHash,
		"dest_hash":              r.DestHash,
		"record_insert_datetime": insertedAt,
	}
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = fields[c]
	}
	return values
}

// merge performs the UPDATE-on-match / INSERT-on-no-match upsert from the
// staging table into the target, keyed on mergeKeyColumns.
func (s *Sink) merge(ctx context.Context, tx *sql.Tx, staging string) error {
	var onPreds []string
	for _, c := range mergeKeyColumns {
		q := s.dial.QuoteIdent(c)
		onPreds = append(onPreds, fmt.Sprintf("tgt.%s = src.%s", q, q))
	}

	var updateSets []string
	for _, c := range s.columns {
		if isKeyColumn(c) {
			continue
		}
		q := s.dial.QuoteIdent(c)
		updateSets = append(updateSets, fmt.Sprintf("tgt.%s = src.%s", q, q))
	}

	var insertCols, insertVals []string
	for _, c := range s.columns {
		q := s.dial.QuoteIdent(c)
		insertCols = append(insertCols, q)
		insertVals = append(insertVals, "src."+q)
	}

	stmt := fmt.Sprintf(
		`MERGE %s AS tgt USING %s AS src ON (%s) `+
			`WHEN MATCHED THEN UPDATE SET %s `+
			`WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);`,
		s.fullTable(), staging, strings.Join(onPreds, " AND "),
		strings.Join(updateSets, ", "),
		strings.Join(insertCols, ", "), strings.Join(insertVals, ", "),
	)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("merging staged discrepancies: %w", err))
	}
	return nil
}

// dropStaging removes the per-flush staging table once the MERGE has
// consumed it, so a future flush never finds a leftover session-scoped
// temp table under the same name.
func (s *Sink) dropStaging(ctx context.Context, tx *sql.Tx, staging string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", staging)); err != nil {
		return errs.Wrap(errs.KindSink, fmt.Errorf("dropping staging table: %w", err))
	}
	return nil
}

func isKeyColumn(c string) bool {
	for _, k := range mergeKeyColumns {
		if k == c {
			return true
		}
	}
	return false
}

// Close flushes any remaining buffered records and releases the Sink. It
// does not close the underlying *sql.DB, which is owned by the caller.
func (s *Sink) Close(ctx context.Context) error {
	return s.Flush(ctx)
}
