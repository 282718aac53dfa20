//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SmartSales.
//
// SmartSales is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SmartSales is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SmartSales. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aaronlmathis/smartsales/core"
)

// SQLWriterError wraps SQL write errors with context about the operation.
type SQLWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

func (e *SQLWriterError) Error() string {
	return fmt.Sprintf("sql writer %s: %v", e.Op, e.Err)
}

func (e *SQLWriterError) Unwrap() error {
	return e.Err
}

// Dialect selects placeholder syntax, truncation and column types.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", driver)
	}
}

// SQLWriterStats holds SQL write performance statistics.
type SQLWriterStats struct {
	RecordsWritten   int64            // Total records accepted by Write
	BatchesWritten   int64            // Number of batches flushed
	TransactionCount int64            // Number of transactions committed
	LastWriteTime    time.Time        // Time of last flush
	WriteDuration    time.Duration    // Total time spent flushing
	ConnectionTime   time.Duration    // Time spent establishing connection
	NullValueCounts  map[string]int64 // Count of missing values per column
	ConflictCount    int64            // Rows skipped by ON CONFLICT DO NOTHING
}

// ConflictResolution defines how to handle INSERT conflicts.
type ConflictResolution int

const (
	// ConflictError returns an error on conflict.
	ConflictError ConflictResolution = iota
	// ConflictIgnore ignores conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
	// ConflictUpdate updates conflicting rows (ON CONFLICT DO UPDATE).
	ConflictUpdate
)

// SQLWriterOptions configures the SQL writer.
type SQLWriterOptions struct {
	Dialect            Dialect
	DSN                string             // Used when no DB is supplied
	DB                 *sql.DB            // Shared handle; not closed by the writer
	Tx                 *sql.Tx            // Caller transaction; never committed by the writer
	TableName          string             // Target table name
	Columns            []string           // Columns to write (order matters)
	BatchSize          int                // Number of records per batch
	CreateTable        bool               // Create table if not exists
	TruncateTable      bool               // Remove existing rows before the first write
	ConflictResolution ConflictResolution // Conflict handling strategy
	ConflictColumns    []string           // Columns that define uniqueness for conflict resolution
	UpdateColumns      []string           // Columns to update on conflict (for ConflictUpdate)
	TransactionMode    bool               // Wrap batches in transactions
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	QueryTimeout       time.Duration // Timeout for Flush and Close
}

// SQLWriterOption represents a configuration function for SQLWriterOptions.
type SQLWriterOption func(*SQLWriterOptions)

// WithSQLDSN opens a dedicated connection for the writer.
func WithSQLDSN(dialect Dialect, dsn string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Dialect = dialect
		opts.DSN = dsn
	}
}

// WithSQLDB writes through an existing handle owned by the caller.
func WithSQLDB(db *sql.DB, dialect Dialect) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.DB = db
		opts.Dialect = dialect
	}
}

// WithSQLTx writes through a transaction owned by the caller. The writer
// never begins, commits or rolls back when a transaction is supplied.
func WithSQLTx(tx *sql.Tx, dialect Dialect) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Tx = tx
		opts.Dialect = dialect
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.TableName = tableName
	}
}

// WithColumns sets the columns to write.
func WithColumns(columns []string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithSQLBatchSize sets the batch size for writes.
func WithSQLBatchSize(size int) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.CreateTable = create
	}
}

// WithTruncateTable enables or disables removing existing rows before writing.
func WithTruncateTable(truncate bool) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictResolution sets the conflict resolution strategy and columns.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

// WithTransactionMode enables or disables transaction wrapping for batches.
func WithTransactionMode(enabled bool) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.TransactionMode = enabled
	}
}

// WithSQLQueryTimeout sets the timeout used by Flush and Close.
func WithSQLQueryTimeout(timeout time.Duration) SQLWriterOption {
	return func(opts *SQLWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// SQLWriter implements core.DataSink for relational tables.
// It supports batching, transactions, conflict resolution, and statistics.
type SQLWriter struct {
	db          *sql.DB
	tx          *sql.Tx
	ownsDB      bool
	options     SQLWriterOptions
	columns     []string
	insertSQL   string
	recordBuf   []core.Record
	stats       SQLWriterStats
	initialized bool
	errorState  bool
	closed      bool
	mu          sync.Mutex
}

// NewSQLWriter creates a new SQL writer with the given options.
func NewSQLWriter(opts ...SQLWriterOption) (*SQLWriter, error) {
	options := (&SQLWriterOptions{TransactionMode: true}).withDefaults()

	for _, opt := range opts {
		opt(options)
	}

	if err := validateOptions(options); err != nil {
		return nil, &SQLWriterError{Op: "validate", Err: err}
	}

	writer := &SQLWriter{
		db:        options.DB,
		tx:        options.Tx,
		options:   *options,
		columns:   append([]string(nil), options.Columns...),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     SQLWriterStats{NullValueCounts: make(map[string]int64)},
	}

	if writer.db == nil && writer.tx == nil {
		if err := writer.connect(); err != nil {
			return nil, &SQLWriterError{Op: "connect", Err: err}
		}
	}

	return writer, nil
}

// Stats returns a copy of the current write statistics.
func (w *SQLWriter) Stats() SQLWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64)
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write implements the core.DataSink interface.
// Buffers records and writes in batches.
func (w *SQLWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &SQLWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if w.closed {
		return &SQLWriterError{Op: "write", Err: fmt.Errorf("writer is closed")}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx, record); err != nil {
			w.errorState = true
			return &SQLWriterError{Op: "initialize", Err: err}
		}
	}

	for _, col := range w.columns {
		if core.IsMissing(record[col]) {
			w.stats.NullValueCounts[col]++
		}
	}

	w.recordBuf = append(w.recordBuf, record)
	w.stats.RecordsWritten++

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &SQLWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Flush implements the core.DataSink interface.
// Forces any buffered records to be written.
func (w *SQLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.errorState {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &SQLWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the core.DataSink interface.
// Flushes buffered records and closes the connection if the writer opened it.
func (w *SQLWriter) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return flushErr
	}
	w.closed = true
	if w.ownsDB && w.db != nil {
		if err := w.db.Close(); err != nil && flushErr == nil {
			return &SQLWriterError{Op: "close", Err: err}
		}
	}
	return flushErr
}

// withDefaults applies default values to SQLWriterOptions.
func (opts *SQLWriterOptions) withDefaults() *SQLWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 2
	}
	return opts
}

// validateOptions validates the SQL writer options.
func validateOptions(opts *SQLWriterOptions) error {
	if opts.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if _, err := ParseDialect(string(opts.Dialect)); err != nil {
		return err
	}
	if opts.DB == nil && opts.Tx == nil && opts.DSN == "" {
		return fmt.Errorf("dsn, db handle or transaction is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	return nil
}

// connect opens a dedicated connection and configures the pool.
func (w *SQLWriter) connect() error {
	start := time.Now()

	db, err := sql.Open(string(w.options.Dialect), w.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(w.options.MaxOpenConns)
	db.SetMaxIdleConns(w.options.MaxIdleConns)
	db.SetConnMaxLifetime(w.options.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.ownsDB = true
	w.stats.ConnectionTime = time.Since(start)

	return nil
}

// initializeUnsafe performs one-time initialization (must hold mutex).
func (w *SQLWriter) initializeUnsafe(ctx context.Context, firstRecord core.Record) error {
	if len(w.columns) == 0 {
		for key := range firstRecord {
			w.columns = append(w.columns, key)
		}
		sort.Strings(w.columns)
	}

	if w.options.CreateTable {
		if err := w.createTableUnsafe(ctx, firstRecord); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if w.options.TruncateTable {
		if err := w.truncateTableUnsafe(ctx); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	w.insertSQL = w.buildInsertSQL()
	w.initialized = true
	return nil
}

// createTableUnsafe creates the target table based on the first record (must hold mutex).
func (w *SQLWriter) createTableUnsafe(ctx context.Context, record core.Record) error {
	var columns []string
	for _, col := range w.columns {
		columns = append(columns, fmt.Sprintf("%s %s", col, w.inferSQLType(record[col])))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.options.TableName, strings.Join(columns, ", "))
	_, err := w.conn().ExecContext(ctx, query)
	return err
}

// truncateTableUnsafe removes existing rows from the target table (must hold mutex).
func (w *SQLWriter) truncateTableUnsafe(ctx context.Context) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s", w.options.TableName)
	if w.options.Dialect == DialectSQLite {
		query = fmt.Sprintf("DELETE FROM %s", w.options.TableName)
	}
	_, err := w.conn().ExecContext(ctx, query)
	return err
}

func (w *SQLWriter) buildInsertSQL() string {
	placeholders := make([]string, len(w.columns))
	for i := range placeholders {
		if w.options.Dialect == DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.options.TableName,
		strings.Join(w.columns, ", "),
		strings.Join(placeholders, ", "))

	switch w.options.ConflictResolution {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(w.options.ConflictColumns, ", "))
	case ConflictUpdate:
		updateClauses := make([]string, len(w.options.UpdateColumns))
		for i, col := range w.options.UpdateColumns {
			updateClauses[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			strings.Join(w.options.ConflictColumns, ", "),
			strings.Join(updateClauses, ", "))
	}
	return query
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (w *SQLWriter) conn() execer {
	if w.tx != nil {
		return w.tx
	}
	return w.db
}

// flushBufferUnsafe writes buffered records (must hold mutex).
func (w *SQLWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	target := w.conn()
	var tx *sql.Tx
	if w.options.TransactionMode && w.tx == nil {
		tx, err = w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()
		target = tx
	}

	stmt, err := target.PrepareContext(ctx, w.insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range w.recordBuf {
		values := make([]interface{}, len(w.columns))
		for i, col := range w.columns {
			values[i] = w.convertValue(record[col])
		}

		result, execErr := stmt.ExecContext(ctx, values...)
		if execErr != nil {
			err = fmt.Errorf("failed to execute insert: %w", execErr)
			return err
		}
		if rowsAffected, raErr := result.RowsAffected(); raErr == nil && rowsAffected == 0 {
			w.stats.ConflictCount++
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		w.stats.TransactionCount++
	}

	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]

	return nil
}

// inferSQLType infers a column type from a Go value.
func (w *SQLWriter) inferSQLType(value interface{}) string {
	sqlite := w.options.Dialect == DialectSQLite
	switch value.(type) {
	case bool:
		if sqlite {
			return "INTEGER"
		}
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		if sqlite {
			return "INTEGER"
		}
		return "BIGINT"
	case float32, float64:
		if sqlite {
			return "REAL"
		}
		return "DOUBLE PRECISION"
	case time.Time:
		if sqlite {
			return "TEXT"
		}
		return "TIMESTAMP"
	case []byte:
		if sqlite {
			return "BLOB"
		}
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// convertValue converts Go values to driver-compatible types. Missing
// values become NULL; SQLite stores dates as text.
func (w *SQLWriter) convertValue(value interface{}) interface{} {
	if core.IsMissing(value) {
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		if w.options.Dialect == DialectSQLite {
			return core.FormatValue(v)
		}
		return v
	case bool, int64, float64, string, []byte:
		return v
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}
