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

package scrubber

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aaronlmathis/smartsales/aggregate"
	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/readers"
	tbl "github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/writers"
)

var summaryRows = []string{"count", "unique", "top", "freq", "mean", "std", "min", "25%", "50%", "75%", "max"}

// Load reads a CSV file into a new table and wraps it.
func Load(ctx context.Context, path string, opts ...Option) (*DataScrubber, error) {
	t, err := tbl.ReadCSV(ctx, path, readers.WithCSVTrimSpace(false))
	if err != nil {
		return nil, &ScrubberError{Op: "load", Err: err}
	}
	return New(t, opts...), nil
}

// Inspect describes the table. info lists the row count and, per column,
// the non-missing count and kind. summary holds count, unique, top and
// freq for every column plus mean, std, min, quartiles and max for numeric
// columns.
func (s *DataScrubber) Inspect() (info, summary string) {
	if s.t == nil {
		return "", ""
	}
	return s.info(), s.summary()
}

func (s *DataScrubber) info() string {
	cols := s.t.Columns()

	var b strings.Builder
	fmt.Fprintf(&b, "<table.Table>\n%d entries\nData columns (total %d columns):\n", s.t.Len(), len(cols))

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row{"#", "Column", "Non-Null Count", "Dtype"})
	for i, c := range cols {
		w.AppendRow(table.Row{i, c, fmt.Sprintf("%d non-null", s.t.NonMissing(c)), s.t.ColumnKind(c).String()})
	}
	b.WriteString(w.Render())
	b.WriteByte('\n')
	return b.String()
}

func (s *DataScrubber) summary() string {
	cols := s.t.Columns()

	header := table.Row{""}
	for _, c := range cols {
		header = append(header, c)
	}
	stats := make([]map[string]string, len(cols))
	for i, c := range cols {
		stats[i] = s.describe(c)
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(header)
	for _, name := range summaryRows {
		row := table.Row{name}
		for i := range cols {
			row = append(row, stats[i][name])
		}
		w.AppendRow(row)
	}
	return w.Render() + "\n"
}

func (s *DataScrubber) describe(column string) map[string]string {
	out := map[string]string{"count": strconv.Itoa(s.t.NonMissing(column))}

	counts, err := aggregate.ValueCounts(context.Background(), s.t.Rows(), column)
	if err == nil && len(counts) > 0 {
		out["unique"] = strconv.Itoa(len(counts))
		out["top"] = core.FormatValue(counts[0].Value)
		out["freq"] = strconv.FormatInt(counts[0].Count, 10)
	}

	switch s.t.ColumnKind(column) {
	case tbl.KindInt, tbl.KindFloat:
	default:
		return out
	}
	values, err := s.t.Numeric(column)
	if err != nil || len(values) == 0 {
		return out
	}
	out["mean"] = formatStat(tbl.Mean(values))
	out["std"] = formatStat(tbl.Std(values))
	for _, q := range []struct {
		name string
		q    float64
	}{{"min", 0}, {"25%", 0.25}, {"50%", 0.5}, {"75%", 0.75}, {"max", 1}} {
		v, _ := tbl.Quantile(values, q.q)
		out[q.name] = formatStat(v)
	}
	return out
}

func formatStat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// Save writes the table to path as CSV with a header row in column order.
// Nothing is written once an earlier operation has failed.
func (s *DataScrubber) Save(ctx context.Context, path string) error {
	if s.err != nil {
		return s.err
	}
	f, err := os.Create(path)
	if err != nil {
		return &ScrubberError{Op: "save", Err: err}
	}
	w, err := writers.NewCSVWriter(f, writers.WithHeaders(s.t.Columns()))
	if err != nil {
		f.Close()
		return &ScrubberError{Op: "save", Err: err}
	}
	for _, r := range s.t.Rows() {
		if err := w.Write(ctx, r); err != nil {
			w.Close()
			return &ScrubberError{Op: "save", Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &ScrubberError{Op: "save", Err: err}
	}
	s.logger.Debug("saved table", "path", path, "rows", s.t.Len())
	return nil
}
