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

// Package validators checks prepared datasets before they are written or
// loaded: record counts, required fields, null rates, per-field rules,
// uniqueness and references between datasets.
package validators

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aaronlmathis/smartsales/core"
)

// ErrValidationFailed is wrapped by every validation failure.
var ErrValidationFailed = errors.New("validation failed")

// Violation describes one record that broke a rule. Record is the
// zero-based record index, or -1 for dataset-level rules.
type Violation struct {
	Record int
	Field  string
	Value  interface{}
	Reason string
}

func (v Violation) Error() string {
	switch {
	case v.Record < 0 && v.Field == "":
		return v.Reason
	case v.Record < 0:
		return fmt.Sprintf("field %s: %s", v.Field, v.Reason)
	case v.Field == "":
		return fmt.Sprintf("record %d: %s", v.Record, v.Reason)
	}
	return fmt.Sprintf("record %d field %s: %s", v.Record, v.Field, v.Reason)
}

func (v Violation) Unwrap() error { return ErrValidationFailed }

// DataQualityValidator performs dataset-level quality checks: record
// counts, field presence, null rates, per-field rules and unique keys.
type DataQualityValidator struct {
	MinRecords       int                                 // Minimum number of records required
	MaxRecords       int                                 // Maximum number of records allowed (0 = unlimited)
	MaxNullRate      float64                             // Maximum allowed null rate (0.0-1.0), 0 disables the check
	RequiredFields   []string                            // Fields that must be present in all records
	ForbiddenFields  []string                            // Fields that must not be present
	UniqueFields     [][]string                          // Field sets whose combined values must be unique
	FieldValidators  map[string]FieldValidator           // Per-field validation rules
	CustomValidators []func([]core.Record) (bool, error) // Custom validation functions
}

// FieldValidator defines validation rules for individual fields
type FieldValidator struct {
	DataType      FieldDataType                   // Expected data type
	Pattern       *regexp.Regexp                  // Regex pattern for string fields
	MinValue      interface{}                     // Minimum value (for numeric fields)
	MaxValue      interface{}                     // Maximum value (for numeric fields)
	AllowedValues []interface{}                   // Whitelist of allowed values
	CustomFunc    func(interface{}) (bool, error) // Custom validation function
}

// FieldDataType represents expected data types for validation
type FieldDataType string

const (
	FieldTypeString FieldDataType = "string"
	FieldTypeInt    FieldDataType = "int"
	FieldTypeFloat  FieldDataType = "float"
	FieldTypeNumber FieldDataType = "number"
	FieldTypeBool   FieldDataType = "bool"
	FieldTypeEmail  FieldDataType = "email"
	FieldTypeAny    FieldDataType = "any"
)

// Evaluate validates records and returns the first Violation found, or nil.
func (dqv *DataQualityValidator) Evaluate(ctx context.Context, records []core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recordCount := len(records)

	if recordCount < dqv.MinRecords {
		return Violation{Record: -1, Reason: fmt.Sprintf("insufficient records: got %d, need at least %d", recordCount, dqv.MinRecords)}
	}
	if dqv.MaxRecords > 0 && recordCount > dqv.MaxRecords {
		return Violation{Record: -1, Reason: fmt.Sprintf("too many records: got %d, maximum allowed %d", recordCount, dqv.MaxRecords)}
	}
	if recordCount == 0 {
		return nil
	}

	if err := dqv.validateFieldPresence(records); err != nil {
		return err
	}
	if err := dqv.validateNullRates(records); err != nil {
		return err
	}
	if err := dqv.validateFieldValues(records); err != nil {
		return err
	}
	for _, fields := range dqv.UniqueFields {
		if dups := FindDuplicates(records, fields...); len(dups) > 0 {
			return dups[0]
		}
	}

	for i, validator := range dqv.CustomValidators {
		valid, err := validator(records)
		if err != nil {
			return fmt.Errorf("custom validator %d: %w", i, errors.Join(ErrValidationFailed, err))
		}
		if !valid {
			return Violation{Record: -1, Reason: fmt.Sprintf("custom validator %d failed", i)}
		}
	}
	return nil
}

func (dqv *DataQualityValidator) validateFieldPresence(records []core.Record) error {
	for recordIdx, record := range records {
		for _, field := range dqv.RequiredFields {
			if _, exists := record[field]; !exists {
				return Violation{Record: recordIdx, Field: field, Reason: "missing required field"}
			}
		}
		for _, field := range dqv.ForbiddenFields {
			if _, exists := record[field]; exists {
				return Violation{Record: recordIdx, Field: field, Reason: "contains forbidden field"}
			}
		}
	}
	return nil
}

func (dqv *DataQualityValidator) validateNullRates(records []core.Record) error {
	if dqv.MaxNullRate <= 0 {
		return nil
	}

	fieldNames := make(map[string]bool)
	for _, record := range records {
		for field := range record {
			fieldNames[field] = true
		}
	}
	names := make([]string, 0, len(fieldNames))
	for field := range fieldNames {
		names = append(names, field)
	}
	sort.Strings(names)

	for _, field := range names {
		nullCount := 0
		for _, record := range records {
			if core.IsMissing(record[field]) {
				nullCount++
			}
		}
		nullRate := float64(nullCount) / float64(len(records))
		if nullRate > dqv.MaxNullRate {
			return Violation{Record: -1, Field: field,
				Reason: fmt.Sprintf("null rate %.2f exceeds maximum %.2f", nullRate, dqv.MaxNullRate)}
		}
	}
	return nil
}

func (dqv *DataQualityValidator) validateFieldValues(records []core.Record) error {
	if len(dqv.FieldValidators) == 0 {
		return nil
	}
	fields := make([]string, 0, len(dqv.FieldValidators))
	for f := range dqv.FieldValidators {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for recordIdx, record := range records {
		for _, fieldName := range fields {
			value, exists := record[fieldName]
			if !exists || core.IsMissing(value) {
				continue
			}
			if err := validateSingleFieldValue(fieldName, value, dqv.FieldValidators[fieldName], recordIdx); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSingleFieldValue(fieldName string, value interface{}, validator FieldValidator, recordIdx int) error {
	fail := func(reason string) error {
		return Violation{Record: recordIdx, Field: fieldName, Value: value, Reason: reason}
	}

	if !validateDataType(value, validator.DataType) {
		return fail(fmt.Sprintf("invalid type %T, expected %s", value, validator.DataType))
	}

	if validator.Pattern != nil {
		if str, ok := value.(string); ok && !validator.Pattern.MatchString(str) {
			return fail(fmt.Sprintf("value %q does not match pattern", str))
		}
	}

	if val, ok := core.AsFloat(value); ok {
		if _, isStr := value.(string); !isStr {
			if min, ok := core.AsFloat(validator.MinValue); ok && validator.MinValue != nil && val < min {
				return fail(fmt.Sprintf("value %v below minimum %v", value, validator.MinValue))
			}
			if max, ok := core.AsFloat(validator.MaxValue); ok && validator.MaxValue != nil && val > max {
				return fail(fmt.Sprintf("value %v above maximum %v", value, validator.MaxValue))
			}
		}
	}

	if len(validator.AllowedValues) > 0 {
		valid := false
		for _, allowedValue := range validator.AllowedValues {
			if Key(value) == Key(allowedValue) {
				valid = true
				break
			}
		}
		if !valid {
			return fail(fmt.Sprintf("value '%v' not in allowed values", value))
		}
	}

	if validator.CustomFunc != nil {
		valid, err := validator.CustomFunc(value)
		if err != nil {
			return fail(fmt.Sprintf("custom validation: %v", err))
		}
		if !valid {
			return fail("failed custom validation")
		}
	}
	return nil
}

func validateDataType(value interface{}, expectedType FieldDataType) bool {
	switch expectedType {
	case FieldTypeString:
		_, ok := value.(string)
		return ok
	case FieldTypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case FieldTypeFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case FieldTypeNumber:
		if _, isStr := value.(string); isStr {
			return false
		}
		_, ok := core.AsFloat(value)
		return ok
	case FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case FieldTypeEmail:
		if str, ok := value.(string); ok {
			at := strings.Index(str, "@")
			return at > 0 && strings.Contains(str[at:], ".")
		}
		return false
	default:
		return true
	}
}

// Key normalizes a cell for identity comparisons: integral numbers and
// integer strings share one key, so 1001, 1001.0 and "1001" match.
func Key(v interface{}) string {
	if core.IsMissing(v) {
		return ""
	}
	if i, ok := core.AsInt(v); ok {
		return strconv.FormatInt(i, 10)
	}
	return core.FormatValue(v)
}

// FindDuplicates reports every record whose values in fields repeat an
// earlier record. Records with a missing key value are skipped.
func FindDuplicates(records []core.Record, fields ...string) []Violation {
	seen := make(map[string]int, len(records))
	var dups []Violation
	label := strings.Join(fields, ",")
	for i, r := range records {
		parts := make([]string, len(fields))
		skip := false
		for j, f := range fields {
			if core.IsMissing(r[f]) {
				skip = true
				break
			}
			parts[j] = Key(r[f])
		}
		if skip {
			continue
		}
		k := strings.Join(parts, "\x1f")
		if first, ok := seen[k]; ok {
			var value interface{} = strings.Join(parts, ",")
			if len(fields) == 1 {
				value = r[fields[0]]
			}
			dups = append(dups, Violation{Record: i, Field: label, Value: value,
				Reason: fmt.Sprintf("duplicate of record %d", first)})
			continue
		}
		seen[k] = i
	}
	return dups
}

// ReferenceValidator checks that a field only holds keys known to another
// dataset, the way a foreign key would.
type ReferenceValidator struct {
	Field  string // referencing field, e.g. "customer_id"
	Target string // referenced dataset, used in messages
	keys   map[string]struct{}
}

// NewReferenceValidator creates a validator accepting the given keys.
func NewReferenceValidator(field, target string, keys []interface{}) *ReferenceValidator {
	v := &ReferenceValidator{Field: field, Target: target, keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if !core.IsMissing(k) {
			v.keys[Key(k)] = struct{}{}
		}
	}
	return v
}

// Check returns one Violation per record whose reference does not resolve.
// Missing references are violations too.
func (v *ReferenceValidator) Check(records []core.Record) []Violation {
	var out []Violation
	for i, r := range records {
		value := r[v.Field]
		if core.IsMissing(value) {
			out = append(out, Violation{Record: i, Field: v.Field, Reason: "missing reference to " + v.Target})
			continue
		}
		if _, ok := v.keys[Key(value)]; !ok {
			out = append(out, Violation{Record: i, Field: v.Field, Value: value,
				Reason: fmt.Sprintf("unknown %s %v", v.Target, value)})
		}
	}
	return out
}

// DataQualityOption is a functional option for configuring DataQualityValidator
type DataQualityOption func(*DataQualityValidator)

// WithMaxRecords sets the maximum record count
func WithMaxRecords(max int) DataQualityOption {
	return func(dqv *DataQualityValidator) { dqv.MaxRecords = max }
}

// WithMaxNullRate sets the maximum null value rate
func WithMaxNullRate(rate float64) DataQualityOption {
	return func(dqv *DataQualityValidator) { dqv.MaxNullRate = rate }
}

// WithForbiddenFields sets fields that must not be present
func WithForbiddenFields(fields ...string) DataQualityOption {
	return func(dqv *DataQualityValidator) { dqv.ForbiddenFields = fields }
}

// WithUniqueFields requires the combination of fields to be unique.
func WithUniqueFields(fields ...string) DataQualityOption {
	return func(dqv *DataQualityValidator) { dqv.UniqueFields = append(dqv.UniqueFields, fields) }
}

// WithFieldValidator adds a field-specific validator
func WithFieldValidator(fieldName string, validator FieldValidator) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		if dqv.FieldValidators == nil {
			dqv.FieldValidators = make(map[string]FieldValidator)
		}
		dqv.FieldValidators[fieldName] = validator
	}
}

// WithCustomValidator adds a custom validation function
func WithCustomValidator(validator func([]core.Record) (bool, error)) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.CustomValidators = append(dqv.CustomValidators, validator)
	}
}

// NewDataQualityValidator creates a validator with functional options
func NewDataQualityValidator(minRecords int, requiredFields []string, options ...DataQualityOption) *DataQualityValidator {
	dqv := &DataQualityValidator{
		MinRecords:      minRecords,
		RequiredFields:  requiredFields,
		FieldValidators: make(map[string]FieldValidator),
	}
	for _, option := range options {
		option(dqv)
	}
	return dqv
}
