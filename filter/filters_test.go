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

package filter

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/core"
)

func include(t *testing.T, f core.Filter, r core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestNotNull(t *testing.T) {
	f := NotNull("name")
	assert.True(t, include(t, f, core.Record{"name": "Ann"}))
	assert.False(t, include(t, f, core.Record{"name": "  "}))
	assert.False(t, include(t, f, core.Record{"name": nil}))
	assert.False(t, include(t, f, core.Record{"name": math.NaN()}))
	assert.False(t, include(t, f, core.Record{}))
}

func TestNoneMissing(t *testing.T) {
	r := core.Record{"a": int64(1), "b": nil}
	assert.False(t, include(t, NoneMissing(), r))
	assert.True(t, include(t, NoneMissing("a"), r))
	assert.False(t, include(t, NoneMissing("a", "b"), r))
}

func TestEqualityFilters(t *testing.T) {
	r := core.Record{"id": int64(5), "price": 5.0, "code": "5", "region": "East"}

	assert.True(t, include(t, Equals("id", 5), r))
	assert.True(t, include(t, Equals("price", int64(5)), r))
	assert.False(t, include(t, Equals("code", 5), r))
	assert.True(t, include(t, Equals("code", "5"), r))
	assert.False(t, include(t, Equals("missing", nil), r))

	assert.True(t, include(t, NotEquals("region", "West"), r))
	assert.False(t, include(t, NotEquals("region", "East"), r))
	assert.False(t, include(t, NotEquals("missing", "East"), r))

	assert.True(t, include(t, In("region", "North", "East"), r))
	assert.True(t, include(t, In("id", 4, 5), r))
	assert.False(t, include(t, In("region", "South"), r))
}

func TestStringFilters(t *testing.T) {
	r := core.Record{"email": "ann@example.com", "n": int64(3)}
	assert.True(t, include(t, Contains("email", "@example"), r))
	assert.True(t, include(t, StartsWith("email", "ann"), r))
	assert.True(t, include(t, MatchesRegex("email", `^[^@]+@[^@]+\.com$`), r))
	assert.False(t, include(t, MatchesRegex("n", `3`), r))
	assert.Panics(t, func() { MatchesRegex("email", "(") })
}

func TestNumericFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter core.Filter
		value  interface{}
		want   bool
	}{
		{"between low edge", Between("v", 0, 100), int64(0), true},
		{"between high edge", Between("v", 0, 100), 100.0, true},
		{"between outside", Between("v", 0, 100), 100.5, false},
		{"between string number", Between("v", 0, 100), "50", true},
		{"between missing", Between("v", 0, 100), nil, false},
		{"between text", Between("v", 0, 100), "abc", false},
		{"greater", GreaterThan("v", 0), 0.01, true},
		{"greater equal", GreaterThan("v", 0), int64(0), false},
		{"less", LessThan("v", 10), int64(9), true},
		{"less nan", LessThan("v", 10), math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, include(t, tt.filter, core.Record{"v": tt.value}))
		})
	}
}

func TestCombinators(t *testing.T) {
	r := core.Record{"amount": 20.0, "method": "Cash"}
	positive := GreaterThan("amount", 0)
	bitcoin := Equals("method", "Bitcoin")

	assert.True(t, include(t, And(positive, Not(bitcoin)), r))
	assert.False(t, include(t, And(positive, bitcoin), r))
	assert.True(t, include(t, Or(bitcoin, positive), r))
	assert.False(t, include(t, Or(bitcoin), r))
	assert.True(t, include(t, And(), r))

	boom := errors.New("boom")
	failing := CustomWithContext(func(context.Context, core.Record) (bool, error) { return false, boom })
	_, err := And(positive, failing).ShouldInclude(context.Background(), r)
	assert.ErrorIs(t, err, boom)
	_, err = Not(failing).ShouldInclude(context.Background(), r)
	assert.ErrorIs(t, err, boom)

	assert.True(t, include(t, Custom(func(r core.Record) bool { return r["method"] == "Cash" }), r))
}
