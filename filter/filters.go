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

// Package filter provides reusable, composable record filters. Every
// function returns a core.Filter; a record whose field is absent or missing
// never passes a value comparison.
package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/aaronlmathis/smartsales/core"
)

// NotNull creates a filter that excludes records where the field is absent,
// missing or a blank string.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || core.IsMissing(value) {
			return false, nil
		}
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			return false, nil
		}
		return true, nil
	})
}

// NoneMissing excludes records with a missing value in any of fields, or in
// any field at all when fields is empty.
func NoneMissing(fields ...string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if len(fields) == 0 {
			for _, v := range record {
				if core.IsMissing(v) {
					return false, nil
				}
			}
			return true, nil
		}
		for _, f := range fields {
			if core.IsMissing(record[f]) {
				return false, nil
			}
		}
		return true, nil
	})
}

// Equals creates a filter that includes records where the field equals the
// value. Numbers compare by value across integer and float types.
func Equals(field string, expectedValue interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || core.IsMissing(value) {
			return false, nil
		}
		return valuesEqual(value, expectedValue), nil
	})
}

// NotEquals includes records where the field is present and differs from
// the value.
func NotEquals(field string, value interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		v, exists := record[field]
		if !exists || core.IsMissing(v) {
			return false, nil
		}
		return !valuesEqual(v, value), nil
	})
}

// Contains creates a filter that includes records where the string field contains the substring
func Contains(field, substring string) core.Filter {
	return stringMatch(field, func(s string) bool { return strings.Contains(s, substring) })
}

// StartsWith creates a filter that includes records where the string field starts with the prefix
func StartsWith(field, prefix string) core.Filter {
	return stringMatch(field, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// MatchesRegex creates a filter that includes records where the string field matches the regex pattern.
// It panics if pattern does not compile.
func MatchesRegex(field, pattern string) core.Filter {
	regex := regexp.MustCompile(pattern)
	return stringMatch(field, regex.MatchString)
}

// GreaterThan creates a filter that includes records where the numeric field is greater than the value
func GreaterThan(field string, threshold float64) core.Filter {
	return numeric(field, func(n float64) bool { return n > threshold })
}

// LessThan creates a filter that includes records where the numeric field is less than the value
func LessThan(field string, threshold float64) core.Filter {
	return numeric(field, func(n float64) bool { return n < threshold })
}

// Between creates a filter that includes records where the numeric field is between min and max (inclusive)
func Between(field string, min, max float64) core.Filter {
	return numeric(field, func(n float64) bool { return n >= min && n <= max })
}

// In creates a filter that includes records where the field value is in the provided set
func In(field string, values ...interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || core.IsMissing(value) {
			return false, nil
		}
		for _, v := range values {
			if valuesEqual(value, v) {
				return true, nil
			}
		}
		return false, nil
	})
}

// And creates a filter that requires all provided filters to pass
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or creates a filter that requires at least one of the provided filters to pass
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not creates a filter that negates the provided filter
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a filter using a user-provided predicate function
// The predicate function receives a record and returns true if the record should be included
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

// CustomWithContext creates a filter using a user-provided predicate function that has access to context
func CustomWithContext(predicate func(context.Context, core.Record) (bool, error)) core.Filter {
	return core.FilterFunc(predicate)
}

func stringMatch(field string, match func(string) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if str, ok := record[field].(string); ok {
			return match(str), nil
		}
		return false, nil
	})
}

// numeric passes records whose field converts to a number satisfying pred.
// Numeric strings count; anything else is excluded.
func numeric(field string, pred func(float64) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := core.AsFloat(record[field])
		if !ok {
			return false, nil
		}
		return pred(num), nil
	})
}

func valuesEqual(a, b interface{}) bool {
	if _, isStr := a.(string); !isStr {
		if _, isStr := b.(string); !isStr {
			fa, okA := core.AsFloat(a)
			fb, okB := core.AsFloat(b)
			if okA && okB {
				return fa == fb
			}
		}
	}
	return core.FormatValue(a) == core.FormatValue(b) && sameKind(a, b)
}

// sameKind keeps "1" from equalling 1 and "true" from equalling true.
func sameKind(a, b interface{}) bool {
	_, sa := a.(string)
	_, sb := b.(string)
	return sa == sb
}
