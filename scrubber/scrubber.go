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

// Package scrubber provides DataScrubber, a set of chainable cleaning
// operations over a single mutable table.
//
// Every operation mutates the table in place and returns the scrubber. The
// first failing operation records its error; later operations are skipped
// and Err reports it:
//
//	s := scrubber.New(t).
//		StandardizeColumnNames().
//		RemoveDuplicateRecords().
//		FilterOutliers("score", 0, 100)
//	if err := s.Err(); err != nil {
//		return err
//	}
package scrubber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/logging"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/transform"
)

// DefaultDateColumn receives parsed dates when ParseDateColumn is given no
// target column.
const DefaultDateColumn = "parsed_date"

// ScrubberError wraps a failed cleaning operation.
type ScrubberError struct {
	Op  string
	Err error
}

func (e *ScrubberError) Error() string {
	return fmt.Sprintf("scrubber %s: %v", e.Op, e.Err)
}

func (e *ScrubberError) Unwrap() error {
	return e.Err
}

// Case selects the letter case applied by FormatColumnStrings.
type Case int

const (
	CaseLower Case = iota
	CaseUpper
	CaseTitle
)

func (c Case) apply(s string) string {
	switch c {
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseTitle:
		return transform.Title(s)
	default:
		return strings.ToLower(s)
	}
}

// ColumnType is a target type for ConvertColumnType.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
)

var columnTypes = map[ColumnType]reflect.Type{
	TypeString: reflect.TypeOf(""),
	TypeInt:    reflect.TypeOf(int64(0)),
	TypeFloat:  reflect.TypeOf(float64(0)),
	TypeBool:   reflect.TypeOf(false),
}

func (c ColumnType) String() string {
	if rt, ok := columnTypes[c]; ok {
		return rt.String()
	}
	return fmt.Sprintf("ColumnType(%d)", int(c))
}

// ParseColumnType maps "string", "int", "float" or "bool" to a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str":
		return TypeString, nil
	case "int", "int64", "integer":
		return TypeInt, nil
	case "float", "float64", "number":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}

// Option configures a DataScrubber.
type Option func(*DataScrubber)

// WithLogger sets the logger used for per-operation debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DataScrubber) {
		s.logger = logger
	}
}

// DataScrubber wraps a table and exposes chainable cleaning operations.
type DataScrubber struct {
	t      *table.Table
	logger *slog.Logger
	err    error
}

// New wraps t. The scrubber mutates t directly.
func New(t *table.Table, opts ...Option) *DataScrubber {
	s := &DataScrubber{t: t}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	if t == nil {
		s.err = &ScrubberError{Op: "new", Err: errors.New("table is nil")}
	}
	return s
}

// Table returns the wrapped table.
func (s *DataScrubber) Table() *table.Table {
	return s.t
}

// Err returns the first error recorded by an operation.
func (s *DataScrubber) Err() error {
	return s.err
}

func (s *DataScrubber) fail(op string, err error) *DataScrubber {
	s.err = &ScrubberError{Op: op, Err: err}
	return s
}

func (s *DataScrubber) skip() bool {
	return s.err != nil
}

// StandardizeColumnNames trims, lowercases and replaces spaces with
// underscores in every column name.
func (s *DataScrubber) StandardizeColumnNames() *DataScrubber {
	return s.renameEach("standardize_column_names", func(name string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	})
}

// SnakeCaseColumnNames rewrites column names in snake_case, splitting on
// separators and on case changes: "CustomerID" becomes "customer_id" and
// "Loyalty Points" becomes "loyalty_points".
func (s *DataScrubber) SnakeCaseColumnNames() *DataScrubber {
	return s.renameEach("snake_case_column_names", SnakeCase)
}

func (s *DataScrubber) renameEach(op string, fn func(string) string) *DataScrubber {
	if s.skip() {
		return s
	}
	mapping := make(map[string]string)
	for _, c := range s.t.Columns() {
		if n := fn(c); n != c {
			mapping[c] = n
		}
	}
	if len(mapping) == 0 {
		return s
	}
	if err := s.t.RenameColumns(mapping); err != nil {
		return s.fail(op, err)
	}
	s.logger.Debug("renamed columns", "op", op, "columns", s.t.Columns())
	return s
}

// SnakeCase converts a column name to snake_case.
func SnakeCase(name string) string {
	runes := []rune(strings.TrimSpace(name))
	var b strings.Builder
	sep := true
	for i, r := range runes {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '.':
			if !sep {
				b.WriteByte('_')
				sep = true
			}
		case unicode.IsUpper(r):
			if !sep && i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			sep = false
		default:
			b.WriteRune(r)
			sep = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// RemoveDuplicateRecords drops rows identical to an earlier row.
func (s *DataScrubber) RemoveDuplicateRecords() *DataScrubber {
	return s.RemoveDuplicatesBy()
}

// RemoveDuplicatesBy drops rows whose values over columns match an earlier
// row. No columns means all columns.
func (s *DataScrubber) RemoveDuplicatesBy(columns ...string) *DataScrubber {
	if s.skip() {
		return s
	}
	if len(columns) == 0 {
		columns = s.t.Columns()
	} else if err := s.t.Require(columns...); err != nil {
		return s.fail("remove_duplicates", err)
	}
	seen := make(map[string]struct{}, s.t.Len())
	removed := s.t.Filter(func(r core.Record) bool {
		k := table.RowKey(r, columns)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
	s.logger.Debug("removed duplicates", "removed", removed, "rows", s.t.Len())
	return s
}

// HandleMissingData drops every row holding a missing value when drop is
// true. Otherwise a non-nil fill replaces every missing cell.
func (s *DataScrubber) HandleMissingData(drop bool, fill interface{}) *DataScrubber {
	if s.skip() {
		return s
	}
	if drop {
		return s.DropMissing()
	}
	if fill == nil {
		return s
	}
	for _, c := range s.t.Columns() {
		s.fillColumn(c, fill)
	}
	return s
}

// FillMissing replaces missing cells of one column with value.
func (s *DataScrubber) FillMissing(column string, value interface{}) *DataScrubber {
	if s.skip() {
		return s
	}
	if err := s.t.Require(column); err != nil {
		return s.fail("fill_missing", err)
	}
	s.fillColumn(column, value)
	return s
}

// FillMissingMedian replaces missing cells of a numeric column with the
// column median. Integer columns stay integer when the median is whole.
func (s *DataScrubber) FillMissingMedian(column string) *DataScrubber {
	if s.skip() {
		return s
	}
	values, err := s.t.Numeric(column)
	if err != nil {
		return s.fail("fill_missing_median", err)
	}
	if len(values) == 0 {
		return s
	}
	m := table.Median(values)
	var fill interface{} = m
	if m == math.Trunc(m) && s.t.ColumnKind(column) == table.KindInt {
		fill = int64(m)
	}
	s.fillColumn(column, fill)
	return s
}

// FillMissingMode replaces missing cells with the column's most frequent
// value.
func (s *DataScrubber) FillMissingMode(column string) *DataScrubber {
	if s.skip() {
		return s
	}
	mode, err := s.t.Mode(column)
	if err != nil {
		return s.fail("fill_missing_mode", err)
	}
	if mode == nil {
		return s
	}
	s.fillColumn(column, mode)
	return s
}

func (s *DataScrubber) fillColumn(column string, value interface{}) {
	filled := 0
	for _, r := range s.t.Rows() {
		if core.IsMissing(r[column]) {
			r[column] = value
			filled++
		}
	}
	if filled > 0 {
		s.logger.Debug("filled missing values", "column", column, "count", filled, "value", value)
	}
}

// DropMissing drops rows with a missing value in any of columns. No columns
// means all columns.
func (s *DataScrubber) DropMissing(columns ...string) *DataScrubber {
	if s.skip() {
		return s
	}
	if len(columns) == 0 {
		columns = s.t.Columns()
	} else if err := s.t.Require(columns...); err != nil {
		return s.fail("drop_missing", err)
	}
	removed := s.t.Filter(func(r core.Record) bool {
		for _, c := range columns {
			if core.IsMissing(r[c]) {
				return false
			}
		}
		return true
	})
	s.logger.Debug("dropped rows with missing values", "removed", removed, "rows", s.t.Len())
	return s
}

// FormatColumnStrings changes the case of a column's text and trims
// surrounding whitespace. Non-text values are formatted as text first;
// missing cells stay missing.
func (s *DataScrubber) FormatColumnStrings(column string, c Case) *DataScrubber {
	if s.skip() {
		return s
	}
	if err := s.t.Require(column); err != nil {
		return s.fail("format_column_strings", err)
	}
	for _, r := range s.t.Rows() {
		v := r[column]
		if core.IsMissing(v) {
			r[column] = nil
			continue
		}
		r[column] = strings.TrimSpace(c.apply(core.FormatValue(v)))
	}
	return s
}

// RenameColumns renames columns using an old→new mapping. Every old name
// must exist and new names must not collide.
func (s *DataScrubber) RenameColumns(mapping map[string]string) *DataScrubber {
	if s.skip() {
		return s
	}
	if err := s.t.RenameColumns(mapping); err != nil {
		return s.fail("rename_columns", err)
	}
	return s
}

// ReorderColumns keeps exactly the columns in order, in that order.
func (s *DataScrubber) ReorderColumns(order []string) *DataScrubber {
	if s.skip() {
		return s
	}
	if err := s.t.Select(order...); err != nil {
		return s.fail("reorder_columns", err)
	}
	return s
}

// FilterOutliers keeps rows whose numeric value in column lies within
// [lower, upper]. Missing and non-numeric cells are dropped.
func (s *DataScrubber) FilterOutliers(column string, lower, upper float64) *DataScrubber {
	if s.skip() {
		return s
	}
	if err := s.t.Require(column); err != nil {
		return s.fail("filter_outliers", err)
	}
	removed := s.t.Filter(func(r core.Record) bool {
		f, ok := numericCell(r[column])
		return ok && f >= lower && f <= upper
	})
	s.logger.Debug("filtered outliers", "column", column, "lower", lower, "upper", upper, "removed", removed)
	return s
}

// FilterStdDev keeps rows within k sample standard deviations of the
// column mean. A column with fewer than two numeric values is left as is.
func (s *DataScrubber) FilterStdDev(column string, k float64) *DataScrubber {
	if s.skip() {
		return s
	}
	values, err := s.t.Numeric(column)
	if err != nil {
		return s.fail("filter_std_dev", err)
	}
	std := table.Std(values)
	if math.IsNaN(std) {
		return s
	}
	mean := table.Mean(values)
	return s.FilterOutliers(column, mean-k*std, mean+k*std)
}

// FilterQuantile keeps rows whose value lies between the lo and hi
// quantiles of the column.
func (s *DataScrubber) FilterQuantile(column string, lo, hi float64) *DataScrubber {
	if s.skip() {
		return s
	}
	values, err := s.t.Numeric(column)
	if err != nil {
		return s.fail("filter_quantile", err)
	}
	if len(values) == 0 {
		return s
	}
	lower, err := table.Quantile(values, lo)
	if err != nil {
		return s.fail("filter_quantile", err)
	}
	upper, err := table.Quantile(values, hi)
	if err != nil {
		return s.fail("filter_quantile", err)
	}
	return s.FilterOutliers(column, lower, upper)
}

func numericCell(v interface{}) (float64, bool) {
	if core.IsMissing(v) {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	return core.AsFloat(v)
}

// ConvertColumnType converts every non-missing cell of column to typ. The
// column is left untouched and the error names the row when any cell fails.
func (s *DataScrubber) ConvertColumnType(column string, typ ColumnType) *DataScrubber {
	if s.skip() {
		return s
	}
	converted, err := s.convertColumn(column, typ, false)
	if err != nil {
		return s.fail("convert_column_type", err)
	}
	s.setColumn(column, converted)
	return s
}

// CoerceColumnType converts like ConvertColumnType but turns cells that
// fail to convert into missing values.
func (s *DataScrubber) CoerceColumnType(column string, typ ColumnType) *DataScrubber {
	if s.skip() {
		return s
	}
	converted, err := s.convertColumn(column, typ, true)
	if err != nil {
		return s.fail("coerce_column_type", err)
	}
	s.setColumn(column, converted)
	return s
}

func (s *DataScrubber) convertColumn(column string, typ ColumnType, coerce bool) ([]interface{}, error) {
	rt, ok := columnTypes[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported column type %v", typ)
	}
	values, err := s.t.Values(column)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		c, err := transform.ConvertValue(v, rt)
		if err != nil {
			if !coerce {
				return nil, fmt.Errorf("column %q row %d: %w", column, i, err)
			}
			c = nil
		}
		values[i] = c
	}
	return values, nil
}

func (s *DataScrubber) setColumn(column string, values []interface{}) {
	for i, r := range s.t.Rows() {
		r[column] = values[i]
	}
}

// ParseDateColumn parses column into dates stored in newColumn, which
// defaults to DefaultDateColumn. Unparseable cells become missing.
func (s *DataScrubber) ParseDateColumn(column, newColumn string) *DataScrubber {
	if s.skip() {
		return s
	}
	if newColumn == "" {
		newColumn = DefaultDateColumn
	}
	values, err := s.t.Values(column)
	if err != nil {
		return s.fail("parse_date_column", err)
	}
	s.t.AddColumn(newColumn)
	failed := 0
	for i, r := range s.t.Rows() {
		if d, ok := core.ParseDate(values[i]); ok {
			r[newColumn] = d
			continue
		}
		if !core.IsMissing(values[i]) {
			failed++
		}
		r[newColumn] = nil
	}
	if failed > 0 {
		s.logger.Debug("unparseable dates", "column", column, "count", failed)
	}
	return s
}

// Apply runs transformers over every row. Columns no output row carries
// are dropped; new fields become columns appended in name order. A
// transformer returning a nil record drops the row.
func (s *DataScrubber) Apply(ctx context.Context, transformers ...core.Transformer) *DataScrubber {
	if s.skip() || len(transformers) == 0 || s.t.Len() == 0 {
		return s
	}
	tr := transform.Chain(transformers...)

	out := make([]core.Record, 0, s.t.Len())
	present := make(map[string]struct{})
	for i, r := range s.t.Rows() {
		res, err := tr.Transform(ctx, r.Clone())
		if err != nil {
			return s.fail("apply", fmt.Errorf("row %d: %w", i, err))
		}
		if res == nil {
			continue
		}
		for k := range res {
			present[k] = struct{}{}
		}
		out = append(out, res)
	}

	var dropped []string
	for _, c := range s.t.Columns() {
		if _, ok := present[c]; ok {
			delete(present, c)
		} else if len(out) > 0 {
			dropped = append(dropped, c)
		}
	}
	added := make([]string, 0, len(present))
	for k := range present {
		added = append(added, k)
	}
	sort.Strings(added)

	if len(dropped) > 0 {
		if err := s.t.DropColumns(dropped...); err != nil {
			return s.fail("apply", err)
		}
	}
	for _, c := range added {
		s.t.AddColumn(c)
	}
	s.t.SetRows(out)
	return s
}

// Where keeps the rows every filter includes.
func (s *DataScrubber) Where(ctx context.Context, filters ...core.Filter) *DataScrubber {
	if s.skip() || len(filters) == 0 {
		return s
	}
	keep := make([]bool, s.t.Len())
	for i, r := range s.t.Rows() {
		keep[i] = true
		for _, f := range filters {
			ok, err := f.ShouldInclude(ctx, r)
			if err != nil {
				return s.fail("where", fmt.Errorf("row %d: %w", i, err))
			}
			if !ok {
				keep[i] = false
				break
			}
		}
	}
	i := 0
	removed := s.t.Filter(func(core.Record) bool {
		i++
		return keep[i-1]
	})
	s.logger.Debug("filtered rows", "removed", removed, "rows", s.t.Len())
	return s
}
