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

package table

import (
	"fmt"
	"math"
	"sort"

	"github.com/aaronlmathis/smartsales/core"
)

// Numeric returns the non-missing cells of a column that convert to
// float64. Non-numeric cells are skipped.
func (t *Table) Numeric(column string) ([]float64, error) {
	if err := t.Require(column); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(t.rows))
	for _, r := range t.rows {
		v := r[column]
		if core.IsMissing(v) {
			continue
		}
		if _, isString := v.(string); isString {
			continue
		}
		if f, ok := core.AsFloat(v); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Mode returns the most frequent non-missing value of a column. Ties go to
// the smallest value. Returns nil when the column has no values.
func (t *Table) Mode(column string) (interface{}, error) {
	if err := t.Require(column); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	values := make(map[string]interface{})
	for _, r := range t.rows {
		v := r[column]
		if core.IsMissing(v) {
			continue
		}
		k := RowKey(core.Record{"v": v}, []string{"v"})
		counts[k]++
		values[k] = v
	}

	var best interface{}
	bestCount := 0
	for k, n := range counts {
		v := values[k]
		if n > bestCount || (n == bestCount && less(v, best)) {
			best, bestCount = v, n
		}
	}
	return best, nil
}

// Unique returns the number of distinct non-missing values in a column.
func (t *Table) Unique(column string) (int, error) {
	if err := t.Require(column); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, r := range t.rows {
		if core.IsMissing(r[column]) {
			continue
		}
		seen[RowKey(r, []string{column})] = struct{}{}
	}
	return len(seen), nil
}

// NonMissing returns the number of non-missing cells in a column.
func (t *Table) NonMissing(column string) int {
	n := 0
	for _, r := range t.rows {
		if !core.IsMissing(r[column]) {
			n++
		}
	}
	return n
}

func less(a, b interface{}) bool {
	if b == nil {
		return true
	}
	return core.Compare(a, b) < 0
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// Mean returns the arithmetic mean, or NaN for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return Sum(values) / float64(len(values))
}

// Std returns the sample standard deviation (n-1 denominator), or NaN for
// fewer than two values.
func Std(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// Quantile returns the q-th quantile (0 <= q <= 1) using linear
// interpolation between closest ranks. Returns NaN for no values.
func Quantile(values []float64, q float64) (float64, error) {
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("quantile %v out of range [0, 1]", q)
	}
	if len(values) == 0 {
		return math.NaN(), nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return sorted[int(lo)], nil
	}
	frac := pos - lo
	return sorted[int(lo)] + (sorted[int(hi)]-sorted[int(lo)])*frac, nil
}

// Median returns the 0.5 quantile.
func Median(values []float64) float64 {
	m, _ := Quantile(values, 0.5)
	return m
}
