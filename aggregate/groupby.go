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
	"fmt"
	"sort"

	"github.com/aaronlmathis/smartsales/core"
)

// GroupBy groups records by the values of some fields and runs a set of
// aggregators per group.
type GroupBy struct {
	groupFields []string
	outputs     []string
	aggregators map[string]Aggregator
}

// NewGroupBy creates a GroupBy over groupFields. With no fields every record
// falls into a single group.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{
		groupFields: groupFields,
		aggregators: make(map[string]Aggregator),
	}
}

// Count adds a count aggregator for the specified output field
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.add(outputField, &CountAggregator{})
}

// Sum adds a sum aggregator for the specified field
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.add(outputField, &SumAggregator{Field: field})
}

// Avg adds an average aggregator for the specified field
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.add(outputField, &AvgAggregator{Field: field})
}

// Min adds a minimum aggregator for the specified field
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.add(outputField, &MinAggregator{Field: field})
}

// Max adds a maximum aggregator for the specified field
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.add(outputField, &MaxAggregator{Field: field})
}

// With adds a custom aggregator. Its result must hold exactly one value.
func (g *GroupBy) With(outputField string, agg Aggregator) *GroupBy {
	return g.add(outputField, agg)
}

func (g *GroupBy) add(outputField string, agg Aggregator) *GroupBy {
	if _, exists := g.aggregators[outputField]; !exists {
		g.outputs = append(g.outputs, outputField)
	}
	g.aggregators[outputField] = agg
	return g
}

type group struct {
	key         core.Record
	aggregators map[string]Aggregator
}

// Process aggregates records and returns one record per group, in order of
// first appearance. Each result holds the group fields plus one field per
// aggregator.
func (g *GroupBy) Process(ctx context.Context, records []core.Record) ([]core.Record, error) {
	index := make(map[string]*group)
	var order []*group

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groupKey := g.buildGroupKey(record)
		grp, exists := index[groupKey]
		if !exists {
			grp = &group{key: make(core.Record, len(g.groupFields)), aggregators: make(map[string]Aggregator, len(g.aggregators))}
			for _, field := range g.groupFields {
				grp.key[field] = record[field]
			}
			for outputField, agg := range g.aggregators {
				grp.aggregators[outputField] = agg.Clone()
			}
			index[groupKey] = grp
			order = append(order, grp)
		}
		for outputField, agg := range grp.aggregators {
			if err := agg.Add(ctx, record); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", outputField, err)
			}
		}
	}

	results := make([]core.Record, 0, len(order))
	for _, grp := range order {
		result := grp.key.Clone()
		for _, outputField := range g.outputs {
			value, err := grp.aggregators[outputField].Result()
			if err != nil {
				return nil, fmt.Errorf("failed to get result for field %s: %w", outputField, err)
			}
			for _, v := range value {
				result[outputField] = v
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// buildGroupKey encodes the group values with their types so 1 and "1"
// land in different groups.
func (g *GroupBy) buildGroupKey(record core.Record) string {
	key := make([]byte, 0, 32)
	for _, field := range g.groupFields {
		v := record[field]
		if core.IsMissing(v) {
			key = append(key, 0)
		} else {
			key = fmt.Appendf(key, "%T:%s", v, core.FormatValue(v))
		}
		key = append(key, 0x1f)
	}
	return string(key)
}

// ValueCount is the number of records holding one value of a field.
type ValueCount struct {
	Value interface{}
	Count int64
}

// ValueCounts counts the non-missing values of field, most frequent first.
// Ties are ordered by value.
func ValueCounts(ctx context.Context, records []core.Record, field string) ([]ValueCount, error) {
	grouped, err := NewGroupBy(field).Count("count").Process(ctx, records)
	if err != nil {
		return nil, err
	}
	counts := make([]ValueCount, 0, len(grouped))
	for _, r := range grouped {
		if core.IsMissing(r[field]) {
			continue
		}
		counts = append(counts, ValueCount{Value: r[field], Count: r["count"].(int64)})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return core.Compare(counts[i].Value, counts[j].Value) < 0
	})
	return counts, nil
}
