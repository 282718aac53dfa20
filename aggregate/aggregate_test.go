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

package aggregate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/core"
)

func salesRecords() []core.Record {
	return []core.Record{
		{"store_id": int64(401), "payment_method": "Cash", "sale_amount": 10.0},
		{"store_id": int64(402), "payment_method": "Credit Card", "sale_amount": 30.0},
		{"store_id": int64(401), "payment_method": "Credit Card", "sale_amount": 20.0},
		{"store_id": int64(401), "payment_method": nil, "sale_amount": math.NaN()},
	}
}

func TestGroupBy(t *testing.T) {
	results, err := NewGroupBy("store_id").
		Count("sales").
		Sum("sale_amount", "total").
		Avg("sale_amount", "avg").
		Min("sale_amount", "smallest").
		Max("sale_amount", "largest").
		Process(context.Background(), salesRecords())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, int64(401), results[0]["store_id"])
	assert.Equal(t, int64(3), results[0]["sales"])
	assert.Equal(t, 30.0, results[0]["total"])
	assert.Equal(t, 15.0, results[0]["avg"])
	assert.Equal(t, 10.0, results[0]["smallest"])
	assert.Equal(t, 20.0, results[0]["largest"])

	assert.Equal(t, int64(402), results[1]["store_id"])
	assert.Equal(t, int64(1), results[1]["sales"])
}

func TestGroupByWithoutFields(t *testing.T) {
	results, err := NewGroupBy().Count("n").With("methods", &CountAggregator{Field: "payment_method"}).
		Process(context.Background(), salesRecords())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.Record{"n": int64(4), "methods": int64(3)}, results[0])
}

func TestGroupByCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGroupBy("store_id").Count("n").Process(ctx, salesRecords())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregatorsResetAndEmpty(t *testing.T) {
	avg := &AvgAggregator{Field: "x"}
	res, err := avg.Result()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res["avg"].(float64)))

	ctx := context.Background()
	require.NoError(t, avg.Add(ctx, core.Record{"x": int64(4)}))
	require.NoError(t, avg.Add(ctx, core.Record{"x": "6"}))
	res, _ = avg.Result()
	assert.Equal(t, 4.0, res["avg"])

	avg.Reset()
	res, _ = avg.Result()
	assert.True(t, math.IsNaN(res["avg"].(float64)))

	min := &MinAggregator{Field: "name"}
	require.NoError(t, min.Add(ctx, core.Record{"name": "Zoe"}))
	require.NoError(t, min.Add(ctx, core.Record{"name": "Ann"}))
	res, _ = min.Result()
	assert.Equal(t, "Ann", res["min"])
}

func TestValueCounts(t *testing.T) {
	counts, err := ValueCounts(context.Background(), salesRecords(), "payment_method")
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{
		{Value: "Credit Card", Count: 2},
		{Value: "Cash", Count: 1},
	}, counts)
}
