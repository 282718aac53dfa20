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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/smartsales/core"
)

// SQLReaderError wraps SQL read errors with context.
type SQLReaderError struct {
	Op  string
	Err error
}

func (e *SQLReaderError) Error() string {
	return fmt.Sprintf("sql reader %s: %v", e.Op, e.Err)
}

func (e *SQLReaderError) Unwrap() error {
	return e.Err
}

// SQLReaderStats holds SQL read statistics.
type SQLReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// SQLReader streams the rows of a query as records. The query runs on the
// first Read; the database handle belongs to the caller.
type SQLReader struct {
	db          *sql.DB
	query       string
	params      []interface{}
	rows        *sql.Rows
	columnNames []string
	columnTypes []*sql.ColumnType
	values      []interface{}
	scanBuffer  []interface{}
	finished    bool
	stats       SQLReaderStats
	mu          sync.Mutex
}

// NewSQLReader creates a reader for query over db.
func NewSQLReader(db *sql.DB, query string, params ...interface{}) (*SQLReader, error) {
	if db == nil {
		return nil, &SQLReaderError{Op: "validate", Err: fmt.Errorf("database handle is required")}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &SQLReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}
	return &SQLReader{
		db:     db,
		query:  query,
		params: params,
		stats:  SQLReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Headers returns the result column names. Empty until the first Read.
func (r *SQLReader) Headers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.columnNames...)
}

// Read implements the core.DataSource interface.
func (r *SQLReader) Read(ctx context.Context) (core.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() { r.stats.ReadDuration += time.Since(start) }()

	select {
	case <-ctx.Done():
		return nil, &SQLReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if r.finished {
		return nil, io.EOF
	}
	if r.rows == nil {
		if err := r.executeQuery(ctx); err != nil {
			return nil, err
		}
	}

	if !r.rows.Next() {
		r.finished = true
		if err := r.rows.Err(); err != nil {
			return nil, &SQLReaderError{Op: "read", Err: err}
		}
		return nil, io.EOF
	}

	if err := r.rows.Scan(r.scanBuffer...); err != nil {
		return nil, &SQLReaderError{Op: "scan", Err: err}
	}

	record := make(core.Record, len(r.columnNames))
	for i, name := range r.columnNames {
		v := convertSQLValue(r.values[i], r.columnTypes[i])
		if v == nil {
			r.stats.NullValueCounts[name]++
		}
		record[name] = v
	}
	r.stats.RecordsRead++
	return record, nil
}

// Close implements the core.DataSource interface. The database handle is
// left open.
func (r *SQLReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	if r.rows != nil {
		err := r.rows.Close()
		r.rows = nil
		if err != nil {
			return &SQLReaderError{Op: "close", Err: err}
		}
	}
	return nil
}

// Stats returns read statistics.
func (r *SQLReader) Stats() SQLReaderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *SQLReader) executeQuery(ctx context.Context) error {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, r.query, r.params...)
	if err != nil {
		return &SQLReaderError{Op: "query", Err: err}
	}
	r.stats.QueryDuration = time.Since(start)

	columnNames, err := rows.Columns()
	if err != nil {
		rows.Close()
		return &SQLReaderError{Op: "columns", Err: err}
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return &SQLReaderError{Op: "column_types", Err: err}
	}

	r.rows = rows
	r.columnNames = columnNames
	r.columnTypes = columnTypes
	r.values = make([]interface{}, len(columnNames))
	r.scanBuffer = make([]interface{}, len(columnNames))
	for i := range r.scanBuffer {
		r.scanBuffer[i] = &r.values[i]
	}
	return nil
}

// convertSQLValue normalizes driver values: text arrives as string, all
// integers as int64 and all floats as float64.
func convertSQLValue(value interface{}, colType *sql.ColumnType) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if colType != nil {
			switch strings.ToUpper(colType.DatabaseTypeName()) {
			case "BLOB", "BYTEA":
				return append([]byte(nil), v...)
			}
		}
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}
