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
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/readers"
)

// ReadCSV loads a CSV file with a header row and infers one type per column.
func ReadCSV(ctx context.Context, path string, options ...readers.ReaderOptionCSV) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	t, err := ReadCSVFrom(ctx, f, options...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadCSVFrom loads CSV text from r, closing it when done.
func ReadCSVFrom(ctx context.Context, r io.ReadCloser, options ...readers.ReaderOptionCSV) (*Table, error) {
	opts := append([]readers.ReaderOptionCSV{readers.WithCSVInferTypes(false)}, options...)
	src, err := readers.NewCSVReader(r, opts...)
	if err != nil {
		r.Close()
		return nil, err
	}
	defer src.Close()

	t, err := Read(ctx, src)
	if err != nil {
		return nil, err
	}
	t.InferTypes()
	return t, nil
}

// Kind is the inferred type of a column.
type Kind int

const (
	KindEmpty Kind = iota // no non-missing values
	KindInt
	KindFloat
	KindBool
	KindString
	KindTime
	KindMixed
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTime:
		return "datetime"
	default:
		return "mixed"
	}
}

// InferTypes converts each column to a single type. A column whose
// non-missing cells are all integer text becomes int64; all numeric text
// becomes float64; all "true"/"false" becomes bool. Columns already holding
// a mix of int64 and float64 become float64. Anything else is left alone.
func (t *Table) InferTypes() {
	for _, c := range t.columns {
		t.inferColumn(c)
	}
}

func (t *Table) inferColumn(column string) {
	allInt, allFloat, allBool := true, true, true
	seen := false
	for _, r := range t.rows {
		v := r[column]
		if core.IsMissing(v) {
			continue
		}
		seen = true
		switch x := v.(type) {
		case string:
			s := strings.TrimSpace(x)
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
			if ls := strings.ToLower(s); ls != "true" && ls != "false" {
				allBool = false
			}
		case int64, int:
			allBool = false
		case float64:
			allInt, allBool = false, false
		case bool:
			allInt, allFloat = false, false
		default:
			allInt, allFloat, allBool = false, false, false
		}
		if !allInt && !allFloat && !allBool {
			return
		}
	}
	if !seen {
		return
	}

	for _, r := range t.rows {
		v := r[column]
		if core.IsMissing(v) {
			r[column] = nil
			continue
		}
		switch {
		case allInt:
			i, _ := core.AsInt(v)
			r[column] = i
		case allFloat:
			f, _ := core.AsFloat(v)
			r[column] = f
		case allBool:
			if s, ok := v.(string); ok {
				r[column] = strings.EqualFold(strings.TrimSpace(s), "true")
			}
		}
	}
}

// ColumnKind reports the type of the non-missing cells of a column.
func (t *Table) ColumnKind(column string) Kind {
	kind := KindEmpty
	for _, r := range t.rows {
		v := r[column]
		if core.IsMissing(v) {
			continue
		}
		k := kindOf(v)
		if kind == KindEmpty {
			kind = k
		} else if kind != k {
			return KindMixed
		}
	}
	return kind
}

func kindOf(v interface{}) Kind {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case string:
		return KindString
	case time.Time:
		return KindTime
	default:
		return KindMixed
	}
}
