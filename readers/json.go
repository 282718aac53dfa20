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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/smartsales/core"
)

// JSONReaderError wraps JSON read errors with context.
type JSONReaderError struct {
	Op   string
	Line int64
	Err  error
}

func (e *JSONReaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("json reader %s (line %d): %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("json reader %s: %v", e.Op, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// JSONReaderStats holds JSON read statistics.
type JSONReaderStats struct {
	RecordsRead     int64
	LinesRead       int64
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// maxJSONLine bounds a single line-delimited JSON record.
const maxJSONLine = 4 * 1024 * 1024

// JSONReader implements DataSource for line-delimited JSON. Whole numbers
// are read as int64, other numbers as float64. Blank lines are skipped.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	stats   JSONReaderStats
}

// NewJSONReader creates a new JSON reader for line-delimited JSON.
func NewJSONReader(r io.ReadCloser) *JSONReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLine)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
		stats:   JSONReaderStats{NullValueCounts: make(map[string]int64)},
	}
}

// Read implements the DataSource interface.
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &JSONReaderError{Op: "read", Err: err}
	}
	start := time.Now()

	for j.scanner.Scan() {
		j.stats.LinesRead++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, &JSONReaderError{Op: "unmarshal", Line: j.stats.LinesRead, Err: err}
		}

		record := make(core.Record, len(raw))
		for k, v := range raw {
			if v == nil {
				j.stats.NullValueCounts[k]++
			}
			record[k] = jsonValue(v)
		}
		j.stats.RecordsRead++
		j.stats.ReadDuration += time.Since(start)
		return record, nil
	}
	if err := j.scanner.Err(); err != nil {
		return nil, &JSONReaderError{Op: "scan", Err: err}
	}
	return nil, io.EOF
}

func jsonValue(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// Close implements the DataSource interface.
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Stats returns JSON reader statistics.
func (j *JSONReader) Stats() JSONReaderStats {
	return j.stats
}
