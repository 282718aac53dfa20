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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/filter"
	"github.com/aaronlmathis/smartsales/internal/testutil"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/transform"
)

func sample(t *testing.T) *DataScrubber {
	t.Helper()
	tbl, err := table.FromRecords([]string{"Name", "Age", "Score"}, []core.Record{
		{"Name": " Alice ", "Age": int64(25), "Score": int64(90)},
		{"Name": "Bob", "Age": int64(30), "Score": int64(85)},
		{"Name": "Alice ", "Age": int64(25), "Score": int64(90)},
		{"Name": nil, "Age": nil, "Score": int64(100)},
	})
	require.NoError(t, err)
	return New(tbl, WithLogger(testutil.NewTestLogger(t)))
}

func column(t *testing.T, s *DataScrubber, name string) []interface{} {
	t.Helper()
	v, err := s.Table().Values(name)
	require.NoError(t, err)
	return v
}

func TestRemoveDuplicateRecords(t *testing.T) {
	s := sample(t).
		FormatColumnStrings("Name", CaseLower).
		RemoveDuplicateRecords()
	require.NoError(t, s.Err())
	assert.Equal(t, 3, s.Table().Len())
	assert.Equal(t, []interface{}{"alice", "bob", nil}, column(t, s, "Name"))
}

func TestRemoveDuplicatesBy(t *testing.T) {
	s := sample(t).RemoveDuplicatesBy("Age")
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{int64(25), int64(30), nil}, column(t, s, "Age"))
	assert.Equal(t, " Alice ", s.Table().Row(0)["Name"], "first occurrence kept")
}

func TestHandleMissingData(t *testing.T) {
	t.Run("fill", func(t *testing.T) {
		s := sample(t).HandleMissingData(false, "Missing")
		require.NoError(t, s.Err())
		for _, c := range s.Table().Columns() {
			assert.Equal(t, s.Table().Len(), s.Table().NonMissing(c), c)
		}
		assert.Equal(t, "Missing", s.Table().Row(3)["Name"])
	})

	t.Run("drop", func(t *testing.T) {
		s := sample(t).HandleMissingData(true, nil)
		require.NoError(t, s.Err())
		assert.Equal(t, 3, s.Table().Len())
	})

	t.Run("nothing to do", func(t *testing.T) {
		s := sample(t).HandleMissingData(false, nil)
		require.NoError(t, s.Err())
		assert.Nil(t, s.Table().Row(3)["Age"])
	})
}

func TestFillMissingStatistics(t *testing.T) {
	tbl, err := table.FromRecords([]string{"points", "style"}, []core.Record{
		{"points": int64(1), "style": "Mobile"},
		{"points": nil, "style": "Desktop"},
		{"points": int64(3), "style": nil},
		{"points": int64(10), "style": "Mobile"},
	})
	require.NoError(t, err)

	s := New(tbl).FillMissingMedian("points").FillMissingMode("style")
	require.NoError(t, s.Err())
	assert.Equal(t, int64(3), tbl.Row(1)["points"])
	assert.Equal(t, "Mobile", tbl.Row(2)["style"])

	s = New(tbl).FillMissingMedian("missing")
	assert.ErrorIs(t, s.Err(), table.ErrColumnNotFound)
}

func TestFillMissingMedianFractional(t *testing.T) {
	tbl, err := table.FromRecords([]string{"points"}, []core.Record{
		{"points": int64(1)}, {"points": int64(2)}, {"points": nil},
	})
	require.NoError(t, err)

	require.NoError(t, New(tbl).FillMissingMedian("points").Err())
	assert.Equal(t, 1.5, tbl.Row(2)["points"])
}

func TestDropMissingSubset(t *testing.T) {
	s := sample(t).DropMissing("Score")
	require.NoError(t, s.Err())
	assert.Equal(t, 4, s.Table().Len())

	s = sample(t).DropMissing("Age")
	require.NoError(t, s.Err())
	assert.Equal(t, 3, s.Table().Len())
}

func TestFormatColumnStrings(t *testing.T) {
	tests := []struct {
		name string
		c    Case
		want []interface{}
	}{
		{"lower", CaseLower, []interface{}{"alice", "bob", "alice", nil}},
		{"upper", CaseUpper, []interface{}{"ALICE", "BOB", "ALICE", nil}},
		{"title", CaseTitle, []interface{}{"Alice", "Bob", "Alice", nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sample(t).FormatColumnStrings("Name", tt.c)
			require.NoError(t, s.Err())
			assert.Equal(t, tt.want, column(t, s, "Name"))
		})
	}
}

func TestFormatColumnStringsNonText(t *testing.T) {
	s := sample(t).FormatColumnStrings("Age", CaseUpper)
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{"25", "30", "25", nil}, column(t, s, "Age"))
}

func TestInvalidColumnErrors(t *testing.T) {
	tests := []struct {
		name string
		op   func(*DataScrubber) *DataScrubber
	}{
		{"format", func(s *DataScrubber) *DataScrubber { return s.FormatColumnStrings("Nope", CaseLower) }},
		{"rename", func(s *DataScrubber) *DataScrubber { return s.RenameColumns(map[string]string{"Nope": "X"}) }},
		{"reorder", func(s *DataScrubber) *DataScrubber { return s.ReorderColumns([]string{"Name", "Nope"}) }},
		{"outliers", func(s *DataScrubber) *DataScrubber { return s.FilterOutliers("Nope", 0, 1) }},
		{"convert", func(s *DataScrubber) *DataScrubber { return s.ConvertColumnType("Nope", TypeFloat) }},
		{"parse date", func(s *DataScrubber) *DataScrubber { return s.ParseDateColumn("Nope", "") }},
		{"fill", func(s *DataScrubber) *DataScrubber { return s.FillMissing("Nope", 0) }},
		{"dedupe", func(s *DataScrubber) *DataScrubber { return s.RemoveDuplicatesBy("Nope") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.op(sample(t))
			require.Error(t, s.Err())
			assert.ErrorIs(t, s.Err(), table.ErrColumnNotFound)

			var se *ScrubberError
			require.True(t, errors.As(s.Err(), &se))
			assert.NotEmpty(t, se.Op)
		})
	}
}

func TestErrorIsSticky(t *testing.T) {
	s := sample(t).
		FormatColumnStrings("Nope", CaseLower).
		HandleMissingData(true, nil).
		RenameColumns(map[string]string{"Name": "FullName"})

	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "format_column_strings")
	assert.Equal(t, 4, s.Table().Len(), "operations after a failure are skipped")
	assert.True(t, s.Table().HasColumn("Name"))
}

func TestRenameColumns(t *testing.T) {
	s := sample(t).RenameColumns(map[string]string{"Name": "FullName"})
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"FullName", "Age", "Score"}, s.Table().Columns())
	assert.Equal(t, "Bob", s.Table().Row(1)["FullName"])

	s = sample(t).RenameColumns(map[string]string{"Name": "Age"})
	assert.ErrorIs(t, s.Err(), table.ErrDuplicateColumn)
}

func TestReorderColumns(t *testing.T) {
	s := sample(t).ReorderColumns([]string{"Score", "Name", "Age"})
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"Score", "Name", "Age"}, s.Table().Columns())

	s = sample(t).ReorderColumns([]string{"Score"})
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"Score"}, s.Table().Columns())
	assert.Len(t, s.Table().Row(0), 1)
}

func TestFilterOutliers(t *testing.T) {
	s := sample(t).FilterOutliers("Score", 80, 95)
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{int64(90), int64(85), int64(90)}, column(t, s, "Score"))

	s = sample(t).FilterOutliers("Score", 85, 90)
	require.NoError(t, s.Err())
	assert.Equal(t, 3, s.Table().Len(), "bounds are inclusive")

	s = sample(t).FilterOutliers("Age", 0, 100)
	require.NoError(t, s.Err())
	assert.Equal(t, 3, s.Table().Len(), "missing values are dropped")

	s = sample(t).FilterOutliers("Name", 0, 100)
	require.NoError(t, s.Err())
	assert.Equal(t, 0, s.Table().Len(), "text is not numeric")
}

func TestFilterStdDev(t *testing.T) {
	records := make([]core.Record, 0, 11)
	for i := 0; i < 10; i++ {
		records = append(records, core.Record{"v": int64(10 + i%2)})
	}
	records = append(records, core.Record{"v": int64(1000)})
	tbl, err := table.FromRecords([]string{"v"}, records)
	require.NoError(t, err)

	s := New(tbl).FilterStdDev("v", 2)
	require.NoError(t, s.Err())
	assert.Equal(t, 10, tbl.Len())

	single, err := table.FromRecords([]string{"v"}, []core.Record{{"v": int64(5)}})
	require.NoError(t, err)
	require.NoError(t, New(single).FilterStdDev("v", 3).Err())
	assert.Equal(t, 1, single.Len(), "no spread, nothing filtered")
}

func TestFilterQuantile(t *testing.T) {
	records := make([]core.Record, 0, 101)
	for i := 0; i <= 100; i++ {
		records = append(records, core.Record{"stock": int64(i)})
	}
	tbl, err := table.FromRecords([]string{"stock"}, records)
	require.NoError(t, err)

	require.NoError(t, New(tbl).FilterQuantile("stock", 0, 0.99).Err())
	assert.Equal(t, 100, tbl.Len())

	assert.Error(t, New(tbl).FilterQuantile("stock", 0, 2).Err())
}

func TestConvertColumnType(t *testing.T) {
	s := sample(t).ConvertColumnType("Age", TypeFloat)
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{25.0, 30.0, 25.0, nil}, column(t, s, "Age"))

	s = sample(t).ConvertColumnType("Score", TypeString)
	require.NoError(t, s.Err())
	assert.Equal(t, "90", s.Table().Row(0)["Score"])
}

func TestConvertColumnTypeStrictFailure(t *testing.T) {
	tbl, err := table.FromRecords([]string{"n"}, []core.Record{{"n": "1"}, {"n": "x"}, {"n": nil}})
	require.NoError(t, err)

	s := New(tbl).ConvertColumnType("n", TypeInt)
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "row 1")
	assert.Equal(t, "1", tbl.Row(0)["n"], "column untouched on failure")
}

func TestCoerceColumnType(t *testing.T) {
	tbl, err := table.FromRecords([]string{"n"}, []core.Record{{"n": "1"}, {"n": "x"}, {"n": nil}, {"n": 2.9}})
	require.NoError(t, err)

	s := New(tbl).CoerceColumnType("n", TypeInt)
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{int64(1), nil, nil, int64(2)}, column(t, s, "n"))
}

func TestCoerceColumnTypeOverflow(t *testing.T) {
	tbl, err := table.FromRecords([]string{"n"}, []core.Record{{"n": "1e20"}, {"n": "5"}})
	require.NoError(t, err)

	s := New(tbl).CoerceColumnType("n", TypeInt)
	require.NoError(t, s.Err())
	assert.Equal(t, []interface{}{nil, int64(5)}, column(t, s, "n"))
}

func TestParseColumnType(t *testing.T) {
	for in, want := range map[string]ColumnType{"int": TypeInt, "Float": TypeFloat, "bool": TypeBool, "string": TypeString} {
		got, err := ParseColumnType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseColumnType("decimal")
	assert.Error(t, err)
	assert.Equal(t, "int64", TypeInt.String())
}

func TestParseDateColumn(t *testing.T) {
	tbl, err := table.FromRecords([]string{"Date"}, []core.Record{
		{"Date": "2023-01-01"}, {"Date": "not a date"}, {"Date": nil}, {"Date": "3/15/2023"},
	})
	require.NoError(t, err)

	s := New(tbl).ParseDateColumn("Date", "")
	require.NoError(t, s.Err())
	require.True(t, tbl.HasColumn(DefaultDateColumn))

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), tbl.Row(0)[DefaultDateColumn])
	assert.Nil(t, tbl.Row(1)[DefaultDateColumn])
	assert.Nil(t, tbl.Row(2)[DefaultDateColumn])
	assert.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), tbl.Row(3)[DefaultDateColumn])
	assert.Equal(t, "2023-01-01", tbl.Row(0)["Date"], "source column kept")

	require.NoError(t, New(tbl).ParseDateColumn("Date", "Date").Err())
	assert.IsType(t, time.Time{}, tbl.Row(0)["Date"])
}

func TestParseDateColumnTwoDigitYears(t *testing.T) {
	tbl, err := table.FromRecords([]string{"d"}, []core.Record{{"d": "11/11/21"}, {"d": "2/14/23"}})
	require.NoError(t, err)

	require.NoError(t, New(tbl).ParseDateColumn("d", "").Err())
	assert.Equal(t, time.Date(2021, 11, 11, 0, 0, 0, 0, time.UTC), tbl.Row(0)[DefaultDateColumn])
	assert.Equal(t, time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC), tbl.Row(1)[DefaultDateColumn])
}

func TestColumnNames(t *testing.T) {
	tbl, err := table.New(" First Name", "AGE", "Loyalty Points")
	require.NoError(t, err)
	require.NoError(t, New(tbl).StandardizeColumnNames().Err())
	assert.Equal(t, []string{"first_name", "age", "loyalty_points"}, tbl.Columns())

	clash, err := table.New("Age", "age ")
	require.NoError(t, err)
	assert.ErrorIs(t, New(clash).StandardizeColumnNames().Err(), table.ErrDuplicateColumn)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"CustomerID":      "customer_id",
		"Loyalty Points":  "loyalty_points",
		"TransactionID":   "transaction_id",
		"SaleAmount":      "sale_amount",
		"product_id":      "product_id",
		" Name ":          "name",
		"IDNumber":        "id_number",
		"Address2Line":    "address2_line",
		"unit-price":      "unit_price",
		"DiscountPercent": "discount_percent",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}

	tbl, err := table.New("CustomerID", "JoinDate")
	require.NoError(t, err)
	require.NoError(t, New(tbl).SnakeCaseColumnNames().Err())
	assert.Equal(t, []string{"customer_id", "join_date"}, tbl.Columns())
}

func TestApplyAndWhere(t *testing.T) {
	ctx := context.Background()
	s := sample(t).
		Apply(ctx,
			transform.TrimSpace("Name"),
			transform.Rename(map[string]string{"Score": "points"}),
			transform.AddField("passed", func(r core.Record) interface{} {
				f, _ := core.AsFloat(r["points"])
				return f >= 90
			}),
		).
		Where(ctx, filter.NotNull("Name"), filter.GreaterThan("points", 85))
	require.NoError(t, s.Err())

	assert.Equal(t, []string{"Name", "Age", "passed", "points"}, s.Table().Columns())
	assert.Equal(t, 2, s.Table().Len())
	assert.Equal(t, "Alice", s.Table().Row(0)["Name"])
	assert.Equal(t, true, s.Table().Row(0)["passed"])
}

func TestApplyError(t *testing.T) {
	s := sample(t).Apply(context.Background(), transform.ToInt("Name"))
	require.Error(t, s.Err())
	assert.Equal(t, 4, s.Table().Len())
	assert.Equal(t, " Alice ", s.Table().Row(0)["Name"])
}

func TestInspect(t *testing.T) {
	info, summary := sample(t).Inspect()
	assert.NotEmpty(t, info)
	assert.NotEmpty(t, summary)

	assert.Contains(t, info, "4 entries")
	assert.Contains(t, info, "3 non-null")
	assert.Contains(t, info, "int64")
	for _, row := range []string{"count", "unique", "top", "freq", "mean", "std", "25%", "max"} {
		assert.Contains(t, summary, row)
	}
	assert.Contains(t, summary, "91.25", "mean score")
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "people_cleaned.csv")

	s := sample(t).ReorderColumns([]string{"Score", "Name", "Age"})
	require.NoError(t, s.Save(ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Score,Name,Age", lines[0])
	assert.Equal(t, "100,,", lines[4])

	loaded, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Table().Len())
	assert.Equal(t, " Alice ", loaded.Table().Row(0)["Name"])
	assert.Equal(t, int64(90), loaded.Table().Row(0)["Score"])
}

func TestSaveError(t *testing.T) {
	err := sample(t).Save(context.Background(), filepath.Join(t.TempDir(), "missing", "out.csv"))
	require.Error(t, err)
	var se *ScrubberError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "save", se.Op)
}

func TestSaveAfterFailedStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people_cleaned.csv")
	s := sample(t).RenameColumns(map[string]string{"Nope": "X"})

	err := s.Save(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
	assert.NoFileExists(t, path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
