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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/smartsales/core"
)

// ParquetWriterError wraps Parquet write errors with context.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "close_writer")
	Err error  // Underlying error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterStats holds Parquet write statistics.
type ParquetWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression algorithm
	FieldOrder   []string             // Explicit field ordering
	RowGroupSize int64                // Maximum rows per row group
}

// ParquetWriterOption is a functional option for ParquetWriter.
type ParquetWriterOption func(*ParquetWriterOptions)

func WithParquetBatchSize(size int64) ParquetWriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

func WithCompression(compression compress.Compression) ParquetWriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder fixes the column order. Without it the columns are the
// sorted key set of the first batch.
func WithFieldOrder(fields []string) ParquetWriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

func WithRowGroupSize(size int64) ParquetWriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// ParquetWriter implements core.DataSink for Parquet output. The schema is
// inferred from the first non-missing value of each column in the first
// batch; columns with no values are written as strings.
type ParquetWriter struct {
	dest         *onceCloser
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	fieldOrder   []string
	builders     []array.Builder
	allocator    memory.Allocator
	recordBuffer []core.Record
	stats        ParquetWriterStats
	opts         *ParquetWriterOptions
	closed       bool
	errorState   bool
	mu           sync.Mutex
}

// NewParquetWriter creates a Parquet writer over w. Close finalizes the
// file footer and closes w.
func NewParquetWriter(w io.WriteCloser, options ...ParquetWriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	return &ParquetWriter{
		dest:         &onceCloser{WriteCloser: w},
		fieldOrder:   opts.FieldOrder,
		allocator:    memory.NewGoAllocator(),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        ParquetWriterStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// NewParquetFileWriter creates filename (and its parent directories) and
// returns a writer over it.
func NewParquetFileWriter(filename string, options ...ParquetWriterOption) (*ParquetWriter, error) {
	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}
	return NewParquetWriter(file, options...)
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		s.NullValueCounts[k] = v
	}
	return s
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.errorState {
		return nil
	}
	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	return nil
}

// Close implements the core.DataSink interface.
// Flushes remaining records, writes the footer and closes the destination.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if !p.errorState {
		if err := p.flushBatch(); err != nil {
			firstErr = err
		}
		if firstErr == nil && p.writer == nil && len(p.fieldOrder) > 0 {
			firstErr = p.initializeSchema(nil)
		}
	}

	for _, builder := range p.builders {
		if builder != nil {
			builder.Release()
		}
	}
	p.builders = nil

	if p.writer != nil {
		if err := p.writer.Close(); err != nil && firstErr == nil {
			firstErr = &ParquetWriterError{Op: "close_writer", Err: err}
		}
		p.writer = nil
	}
	if err := p.dest.Close(); err != nil && firstErr == nil {
		firstErr = &ParquetWriterError{Op: "close_file", Err: err}
	}
	return firstErr
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// initializeSchema builds the Arrow schema from the first batch.
func (p *ParquetWriter) initializeSchema(batch []core.Record) error {
	if p.fieldOrder == nil {
		seen := make(map[string]struct{})
		for _, r := range batch {
			for name := range r {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					p.fieldOrder = append(p.fieldOrder, name)
				}
			}
		}
		sort.Strings(p.fieldOrder)
	}

	fields := make([]arrow.Field, 0, len(p.fieldOrder))
	for _, name := range p.fieldOrder {
		dataType := arrow.DataType(arrow.BinaryTypes.String)
		for _, r := range batch {
			if v := r[name]; !core.IsMissing(v) {
				dataType = inferArrowType(v)
				break
			}
		}
		fields = append(fields, arrow.Field{Name: name, Type: dataType, Nullable: true})
	}
	p.schema = arrow.NewSchema(fields, nil)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.dest, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(fields))
	for i, f := range fields {
		p.builders[i] = array.NewBuilder(p.allocator, f.Type)
	}
	return nil
}

// inferArrowType maps a Go value to the Arrow type used to store its column.
func inferArrowType(value interface{}) arrow.DataType {
	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us
	case []byte:
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

// flushBatch writes the current buffer to the Parquet file (must hold mutex).
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}

	start := time.Now()

	if p.writer == nil {
		if err := p.initializeSchema(p.recordBuffer); err != nil {
			return err
		}
	}

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		return &ParquetWriterError{Op: "create_arrow_record", Err: err}
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// createArrowRecord converts buffered records to an Arrow record.
func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, fieldName := range p.fieldOrder {
			value := record[fieldName]
			if core.IsMissing(value) {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[fieldName]++
				continue
			}
			if err := appendValueToBuilder(p.builders[i], value); err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldName, err)
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

// appendValueToBuilder appends a value to the appropriate Arrow array builder.
func appendValueToBuilder(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int64Builder:
		if _, isString := value.(string); !isString {
			if v, ok := core.AsInt(value); ok {
				b.Append(v)
				return nil
			}
		}
		return fmt.Errorf("expected integer, got %T", value)
	case *array.Float64Builder:
		if _, isString := value.(string); !isString {
			if v, ok := core.AsFloat(value); ok {
				b.Append(v)
				return nil
			}
		}
		return fmt.Errorf("expected number, got %T", value)
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	case *array.BinaryBuilder:
		v, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte, got %T", value)
		}
		b.Append(v)
	case *array.StringBuilder:
		b.Append(core.FormatValue(value))
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

// onceCloser closes the wrapped destination at most once; the Parquet file
// writer closes its sink itself when finishing the footer.
type onceCloser struct {
	io.WriteCloser
	once sync.Once
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() { o.err = o.WriteCloser.Close() })
	return o.err
}
