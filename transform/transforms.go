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

// Package transform provides reusable, composable record transformations:
// field selection, renaming, type conversion, string normalization and
// value mapping. Every function returns a core.Transformer and leaves the
// input record untouched.
package transform

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aaronlmathis/smartsales/core"
)

// Select creates a transformer that selects only the specified fields from each record.
// Fields not listed are omitted from the output record.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename creates a transformer that renames fields according to the provided mapping.
// Keys are original field names, values are new field names.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			if newKey, exists := mapping[key]; exists {
				result[newKey] = value
			} else {
				result[key] = value
			}
		}
		return result, nil
	})
}

// AddField creates a transformer that adds a new field with a computed value to each record.
// The value is computed by the provided function, which receives the current record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		result[field] = fn(record)
		return result, nil
	})
}

// ConvertType creates a transformer that converts a field to targetType.
// Missing values stay missing. If conversion fails an error is returned.
func ConvertType(field string, targetType reflect.Type) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists {
			return record.Clone(), nil
		}
		converted, err := ConvertValue(value, targetType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		result := record.Clone()
		result[field] = converted
		return result, nil
	})
}

// ToString creates a transformer that converts a field to a string.
func ToString(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(""))
}

// ToInt creates a transformer that converts a field to an int64.
func ToInt(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(int64(0)))
}

// ToFloat creates a transformer that converts a field to a float64.
func ToFloat(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(0.0))
}

// TrimSpace creates a transformer that trims whitespace from the specified string fields.
func TrimSpace(fields ...string) core.Transformer {
	return mapStrings(fields, strings.TrimSpace)
}

// TrimAll trims whitespace from every string field.
func TrimAll() core.Transformer {
	return mapStrings(nil, strings.TrimSpace)
}

// ToUpper creates a transformer that converts the specified string fields to uppercase.
func ToUpper(fields ...string) core.Transformer {
	return mapStrings(fields, strings.ToUpper)
}

// ToLower creates a transformer that converts the specified string fields to lowercase.
func ToLower(fields ...string) core.Transformer {
	return mapStrings(fields, strings.ToLower)
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest.
func TitleCase(fields ...string) core.Transformer {
	return mapStrings(fields, Title)
}

// RemoveSpaces deletes all whitespace inside the specified string fields.
func RemoveSpaces(fields ...string) core.Transformer {
	return mapStrings(fields, func(s string) string {
		return strings.Join(strings.Fields(s), "")
	})
}

// Title returns s in title case.
func Title(s string) string {
	// cases.Caser is stateful, so each call gets its own.
	return cases.Title(language.Und).String(s)
}

// MapValues replaces values of field found in mapping, matched on their
// text form. Unmapped and missing values are kept.
func MapValues(field string, mapping map[string]interface{}) core.Transformer {
	return mapValues(field, mapping, nil, false)
}

// MapValuesOr is MapValues with unmapped, non-missing values replaced by
// fallback.
func MapValuesOr(field string, mapping map[string]interface{}, fallback interface{}) core.Transformer {
	return mapValues(field, mapping, fallback, true)
}

func mapValues(field string, mapping map[string]interface{}, fallback interface{}, useFallback bool) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || core.IsMissing(value) {
			return result, nil
		}
		if mapped, ok := mapping[core.FormatValue(value)]; ok {
			result[field] = mapped
		} else if useFallback {
			result[field] = fallback
		}
		return result, nil
	})
}

// NullIf turns the listed sentinel texts into missing values in the given
// fields, or in every field when fields is empty. Comparison is on the
// trimmed text.
func NullIf(sentinels []string, fields ...string) core.Transformer {
	set := make(map[string]struct{}, len(sentinels))
	for _, s := range sentinels {
		set[s] = struct{}{}
	}
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fieldsOf(record, fields) {
			if s, ok := result[field].(string); ok {
				if _, hit := set[strings.TrimSpace(s)]; hit {
					result[field] = nil
				}
			}
		}
		return result, nil
	})
}

// ParseTime creates a transformer that parses a string field into a time.Time using the given layout.
func ParseTime(field, layout string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if str, ok := record[field].(string); ok {
			parsed, err := time.Parse(layout, strings.TrimSpace(str))
			if err != nil {
				return nil, fmt.Errorf("failed to parse time field %s: %w", field, err)
			}
			result[field] = parsed
		}
		return result, nil
	})
}

// FormatTime renders a time.Time field as text using layout.
func FormatTime(field, layout string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if t, ok := record[field].(time.Time); ok {
			result[field] = t.Format(layout)
		}
		return result, nil
	})
}

// Clamp limits a numeric field to [min, max]. Numeric text is parsed;
// missing and non-numeric values are kept.
func Clamp(field string, min, max float64) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		v := record[field]
		if core.IsMissing(v) {
			return result, nil
		}
		f, ok := core.AsFloat(v)
		if !ok {
			return result, nil
		}
		switch {
		case f < min:
			result[field] = min
		case f > max:
			result[field] = max
		default:
			result[field] = f
		}
		return result, nil
	})
}

// RemoveField creates a transformer that removes the specified field from each record.
// If the field doesn't exist, the record is returned unchanged.
func RemoveField(field string) core.Transformer {
	return RemoveFields(field)
}

// RemoveFields creates a transformer that removes multiple specified fields from each record.
// Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	fieldsToRemove := make(map[string]bool, len(fields))
	for _, field := range fields {
		fieldsToRemove[field] = true
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !fieldsToRemove[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// Chain applies transformers in order, stopping at the first error.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		var err error
		for _, t := range transformers {
			if record, err = t.Transform(ctx, record); err != nil {
				return nil, err
			}
		}
		return record, nil
	})
}

// mapStrings applies fn to the string values of fields, or of every field
// when fields is empty.
func mapStrings(fields []string, fn func(string) string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fieldsOf(record, fields) {
			if str, ok := result[field].(string); ok {
				result[field] = fn(str)
			}
		}
		return result, nil
	})
}

func fieldsOf(record core.Record, fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	all := make([]string, 0, len(record))
	for k := range record {
		all = append(all, k)
	}
	return all
}

// ConvertValue converts a value to targetType. Integers convert to int64
// regardless of the integer kind requested. Missing values return nil.
func ConvertValue(value interface{}, targetType reflect.Type) (interface{}, error) {
	if core.IsMissing(value) {
		return nil, nil
	}

	switch targetType.Kind() {
	case reflect.String:
		return core.FormatValue(value), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return convertToInt(value)
	case reflect.Float32, reflect.Float64:
		return convertToFloat(value)
	case reflect.Bool:
		return convertToBool(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
}

// convertToInt truncates finite floats toward zero, like a numeric cast.
func convertToInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && core.FitsInt64(f) {
			return int64(f), nil
		}
		return 0, fmt.Errorf("cannot convert %q to int", v)
	}
	if i, ok := core.AsInt(value); ok {
		return i, nil
	}
	if f, ok := core.AsFloat(value); ok && core.FitsInt64(f) {
		return int64(f), nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", value)
}

func convertToFloat(value interface{}) (float64, error) {
	if b, ok := value.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	if f, ok := core.AsFloat(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %v (%T) to float64", value, value)
}

func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	}
	if f, ok := core.AsFloat(value); ok {
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot convert %T to bool", value)
}
