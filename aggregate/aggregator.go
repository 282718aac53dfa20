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

// Package aggregate summarizes records: counts, sums, averages and extremes,
// optionally per group.
package aggregate

import (
	"context"
	"math"

	"github.com/aaronlmathis/smartsales/core"
)

// Aggregator is the core.Aggregator contract plus Clone, so GroupBy can give
// every group a fresh instance.
type Aggregator interface {
	core.Aggregator
	// Clone returns an empty aggregator with the same configuration.
	Clone() Aggregator
}

// CountAggregator counts records. With a Field set, only records where the
// field is present and not missing are counted.
type CountAggregator struct {
	Field string
	count int64
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	if c.Field == "" || !core.IsMissing(record[c.Field]) {
		c.count++
	}
	return nil
}

func (c *CountAggregator) Result() (core.Record, error) {
	return core.Record{"count": c.count}, nil
}

func (c *CountAggregator) Reset() { c.count = 0 }

func (c *CountAggregator) Clone() Aggregator { return &CountAggregator{Field: c.Field} }

// SumAggregator sums numeric values
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := numericValue(record[s.Field]); ok {
		s.sum += num
	}
	return nil
}

func (s *SumAggregator) Result() (core.Record, error) {
	return core.Record{"sum": s.sum}, nil
}

func (s *SumAggregator) Reset() { s.sum = 0 }

func (s *SumAggregator) Clone() Aggregator { return &SumAggregator{Field: s.Field} }

// AvgAggregator calculates the mean of numeric values. The result is NaN
// when no value was seen.
type AvgAggregator struct {
	Field string
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := numericValue(record[a.Field]); ok {
		a.sum += num
		a.count++
	}
	return nil
}

func (a *AvgAggregator) Result() (core.Record, error) {
	if a.count == 0 {
		return core.Record{"avg": math.NaN()}, nil
	}
	return core.Record{"avg": a.sum / float64(a.count)}, nil
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

func (a *AvgAggregator) Clone() Aggregator { return &AvgAggregator{Field: a.Field} }

// MinAggregator finds the smallest non-missing value
type MinAggregator struct {
	Field string
	min   interface{}
}

func (m *MinAggregator) Add(ctx context.Context, record core.Record) error {
	value := record[m.Field]
	if core.IsMissing(value) {
		return nil
	}
	if m.min == nil || core.Compare(value, m.min) < 0 {
		m.min = value
	}
	return nil
}

func (m *MinAggregator) Result() (core.Record, error) {
	return core.Record{"min": m.min}, nil
}

func (m *MinAggregator) Reset() { m.min = nil }

func (m *MinAggregator) Clone() Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator finds the largest non-missing value
type MaxAggregator struct {
	Field string
	max   interface{}
}

func (m *MaxAggregator) Add(ctx context.Context, record core.Record) error {
	value := record[m.Field]
	if core.IsMissing(value) {
		return nil
	}
	if m.max == nil || core.Compare(value, m.max) > 0 {
		m.max = value
	}
	return nil
}

func (m *MaxAggregator) Result() (core.Record, error) {
	return core.Record{"max": m.max}, nil
}

func (m *MaxAggregator) Reset() { m.max = nil }

func (m *MaxAggregator) Clone() Aggregator { return &MaxAggregator{Field: m.Field} }

// numericValue accepts numbers only; numeric text is not summed.
func numericValue(v interface{}) (float64, bool) {
	if _, isStr := v.(string); isStr {
		return 0, false
	}
	return core.AsFloat(v)
}
