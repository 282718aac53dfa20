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

// Package table holds the two-dimensional labeled table the scrubbing
// utility mutates: an ordered list of unique column names and rows keyed by
// those names.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aaronlmathis/smartsales/core"
)

var (
	// ErrColumnNotFound is returned when an operation names a column the table does not have.
	ErrColumnNotFound = errors.New("column not found")
	// ErrDuplicateColumn is returned when an operation would leave two columns with the same name.
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Table is an in-memory table with ordered, unique column names.
type Table struct {
	columns []string
	rows    []core.Record
}

// New creates an empty table with the given columns.
func New(columns ...string) (*Table, error) {
	if err := checkUnique(columns); err != nil {
		return nil, err
	}
	return &Table{columns: append([]string(nil), columns...)}, nil
}

// FromRecords builds a table from records. Column order is the given
// columns, or the sorted union of record keys when columns is empty.
func FromRecords(columns []string, records []core.Record) (*Table, error) {
	if len(columns) == 0 {
		columns = unionKeys(records)
	}
	t, err := New(columns...)
	if err != nil {
		return nil, err
	}
	t.Append(records...)
	return t, nil
}

// Read drains src into a new table. Column order comes from src when it
// implements core.HeaderSource, otherwise from the keys seen while reading.
func Read(ctx context.Context, src core.DataSource) (*Table, error) {
	var records []core.Record
	for {
		rec, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	var columns []string
	if hs, ok := src.(core.HeaderSource); ok {
		columns = hs.Headers()
	}
	return FromRecords(columns, records)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns row i. The record is shared with the table.
func (t *Table) Row(i int) core.Record {
	return t.rows[i]
}

// Rows returns the rows. The slice and records are shared with the table.
func (t *Table) Rows() []core.Record {
	return t.rows
}

// SetRows replaces all rows, keeping only the table's columns.
func (t *Table) SetRows(rows []core.Record) {
	t.rows = make([]core.Record, 0, len(rows))
	t.Append(rows...)
}

// Append adds records projected onto the table's columns; absent keys
// become missing values.
func (t *Table) Append(records ...core.Record) {
	for _, r := range records {
		row := make(core.Record, len(t.columns))
		for _, c := range t.columns {
			row[c] = r[c]
		}
		t.rows = append(t.rows, row)
	}
}

// HasColumn reports whether name is a column of the table.
func (t *Table) HasColumn(name string) bool {
	return t.indexOf(name) >= 0
}

// Require returns ErrColumnNotFound naming every absent column.
func (t *Table) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// Values returns the cells of one column in row order.
func (t *Table) Values(column string) ([]interface{}, error) {
	if err := t.Require(column); err != nil {
		return nil, err
	}
	out := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[column]
	}
	return out, nil
}

// AddColumn appends a column filled with missing values. Adding an existing
// column is a no-op.
func (t *Table) AddColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.columns = append(t.columns, name)
	for _, r := range t.rows {
		r[name] = nil
	}
}

// RenameColumns renames columns using an old→new mapping. Every old name
// must exist and the result must keep column names unique.
func (t *Table) RenameColumns(mapping map[string]string) error {
	olds := make([]string, 0, len(mapping))
	for old := range mapping {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	if err := t.Require(olds...); err != nil {
		return err
	}

	renamed := make([]string, len(t.columns))
	for i, c := range t.columns {
		if n, ok := mapping[c]; ok {
			renamed[i] = n
		} else {
			renamed[i] = c
		}
	}
	if err := checkUnique(renamed); err != nil {
		return err
	}

	for _, r := range t.rows {
		moved := make(map[string]interface{}, len(mapping))
		for _, old := range olds {
			moved[mapping[old]] = r[old]
			delete(r, old)
		}
		for k, v := range moved {
			r[k] = v
		}
	}
	t.columns = renamed
	return nil
}

// Select keeps exactly the given columns in the given order.
func (t *Table) Select(columns ...string) error {
	if err := checkUnique(columns); err != nil {
		return err
	}
	if err := t.Require(columns...); err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		keep[c] = struct{}{}
	}
	for _, r := range t.rows {
		for k := range r {
			if _, ok := keep[k]; !ok {
				delete(r, k)
			}
		}
	}
	t.columns = append([]string(nil), columns...)
	return nil
}

// DropColumns removes the named columns.
func (t *Table) DropColumns(columns ...string) error {
	if err := t.Require(columns...); err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	kept := t.columns[:0:0]
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	for _, r := range t.rows {
		for c := range drop {
			delete(r, c)
		}
	}
	t.columns = kept
	return nil
}

// Filter keeps the rows for which keep returns true and reports how many
// rows were removed.
func (t *Table) Filter(keep func(core.Record) bool) int {
	kept := t.rows[:0]
	for _, r := range t.rows {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	removed := len(t.rows) - len(kept)
	for i := len(kept); i < len(t.rows); i++ {
		t.rows[i] = nil
	}
	t.rows = kept
	return removed
}

// Clone returns a deep copy of the table structure. Cell values are shared.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: t.Columns(),
		rows:    make([]core.Record, len(t.rows)),
	}
	for i, r := range t.rows {
		out.rows[i] = r.Clone()
	}
	return out
}

// RowKey returns a key identifying the row's values over the given columns,
// used for duplicate detection. Missing values compare equal to each other.
func RowKey(r core.Record, columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		v := r[c]
		if core.IsMissing(v) {
			b.WriteString("\x00")
			continue
		}
		fmt.Fprintf(&b, "%T:%s", v, core.FormatValue(v))
	}
	return b.String()
}

// Source exposes the rows as a core.DataSource in column order.
func (t *Table) Source() core.HeaderSource {
	return &tableSource{t: t}
}

type tableSource struct {
	t   *Table
	pos int
}

func (s *tableSource) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.t.rows) {
		return nil, io.EOF
	}
	r := s.t.rows[s.pos].Clone()
	s.pos++
	return r, nil
}

func (s *tableSource) Headers() []string { return s.t.Columns() }

func (s *tableSource) Close() error { return nil }

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	return t.indexOf(name)
}

func (t *Table) indexOf(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func checkUnique(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

func unionKeys(records []core.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
