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
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/core"
)

func newStringReader(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func readAll(t *testing.T, src core.DataSource) []core.Record {
	t.Helper()
	var out []core.Record
	for {
		rec, err := src.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestCSVReader(t *testing.T) {
	data := "\ufeffCustomerID,Name,LoyaltyPoints,Active\n1001,Alice,120,true\n1002, Bob ,NA,false\n"
	r, err := NewCSVReader(newStringReader(data))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"CustomerID", "Name", "LoyaltyPoints", "Active"}, r.Headers())

	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1001), rec["CustomerID"])
	assert.Equal(t, "Alice", rec["Name"])
	assert.Equal(t, int64(120), rec["LoyaltyPoints"])
	assert.Equal(t, true, rec["Active"])

	rec, err = r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bob", rec["Name"])
	assert.Nil(t, rec["LoyaltyPoints"])
	assert.Equal(t, false, rec["Active"])

	_, err = r.Read(context.Background())
	assert.Equal(t, io.EOF, err)

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["LoyaltyPoints"])
}

func TestCSVReaderWithoutInference(t *testing.T) {
	r, err := NewCSVReader(newStringReader("id,amount\n007,1.50\n"), WithCSVInferTypes(false))
	require.NoError(t, err)

	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "007", rec["id"])
	assert.Equal(t, "1.50", rec["amount"])
}

func TestCSVReaderShortRowsAndNoHeaders(t *testing.T) {
	t.Run("short row", func(t *testing.T) {
		r, err := NewCSVReader(newStringReader("a,b,c\n1\n"))
		require.NoError(t, err)
		rec, err := r.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec["a"])
		assert.Contains(t, rec, "b")
		assert.Nil(t, rec["b"])
		assert.Nil(t, rec["c"])
	})

	t.Run("no headers", func(t *testing.T) {
		r, err := NewCSVReader(newStringReader("x;y\n"), WithCSVHasHeaders(false), WithCSVComma(';'))
		require.NoError(t, err)
		assert.Empty(t, r.Headers())
		rec, err := r.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "x", rec["col_0"])
		assert.Equal(t, "y", rec["col_1"])
	})

	t.Run("empty input", func(t *testing.T) {
		r, err := NewCSVReader(newStringReader(""))
		require.NoError(t, err)
		assert.Empty(t, r.Headers())
		_, err = r.Read(context.Background())
		assert.Equal(t, io.EOF, err)
	})

	t.Run("custom null markers", func(t *testing.T) {
		r, err := NewCSVReader(newStringReader("method\n?\nCash\n"), WithCSVNullValues("?"))
		require.NoError(t, err)
		rec, err := r.Read(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rec["method"])
		rec, err = r.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Cash", rec["method"])
	})
}

func TestCSVReaderCancelledContext(t *testing.T) {
	r, err := NewCSVReader(newStringReader("a\n1\n"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	var readerErr *CSVReaderError
	require.ErrorAs(t, err, &readerErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"3.25", 3.25},
		{"1e3", 1000.0},
		{"TRUE", true},
		{"false", false},
		{" hello ", "hello"},
		{"2023-01-05", "2023-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseValue(tt.in))
		})
	}
}
