// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package row holds rows of table data, converts loosely typed input into
// column values, and encodes batches of rows into fragments.
package row

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/verr"
)

// Row is one row of values in schema column order. Values are int64, float64, string, bool, []byte, time.Time or
// nil for a null.
type Row []any

// Batch is a finite set of rows conforming to one schema.
type Batch struct {
	Schema schema.Schema
	Rows   []Row
}

// NewBatch coerces |rows| to |sch| and returns them as a Batch.
func NewBatch(sch schema.Schema, rows ...Row) (Batch, error) {
	b := Batch{Schema: sch, Rows: make([]Row, len(rows))}
	for i, r := range rows {
		coerced, err := Coerce(sch, r)
		if err != nil {
			return Batch{}, err
		}
		b.Rows[i] = coerced
	}
	return b, nil
}

// BatchFromMaps converts maps keyed by column name into a Batch. Missing keys are nulls and unknown keys are errors.
func BatchFromMaps(sch schema.Schema, maps []map[string]any) (Batch, error) {
	b := Batch{Schema: sch, Rows: make([]Row, len(maps))}
	for i, m := range maps {
		r, err := FromMap(sch, m)
		if err != nil {
			return Batch{}, err
		}
		b.Rows[i] = r
	}
	return b, nil
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.Rows)
}

// FromMap converts one map keyed by column name into a Row of |sch|.
func FromMap(sch schema.Schema, m map[string]any) (Row, error) {
	for k := range m {
		if _, ok := sch.Index(k); !ok {
			return nil, verr.ErrSchemaMismatch.New("unknown column " + k)
		}
	}

	r := make(Row, sch.Len())
	for i, col := range sch.Columns {
		v, err := CoerceValue(col, m[col.Name])
		if err != nil {
			return nil, err
		}
		r[i] = v
	}
	return r, nil
}

// ToMap returns |r| keyed by the column names of |sch|.
func (r Row) ToMap(sch schema.Schema) map[string]any {
	m := make(map[string]any, len(r))
	for i, col := range sch.Columns {
		m[col.Name] = r[i]
	}
	return m
}

// Coerce converts every value of |r| to the type of its column.
func Coerce(sch schema.Schema, r Row) (Row, error) {
	if len(r) != sch.Len() {
		return nil, verr.ErrSchemaMismatch.New(fmt.Sprintf("row has %d values, schema %s has %d columns", len(r), sch, sch.Len()))
	}

	out := make(Row, len(r))
	for i, col := range sch.Columns {
		v, err := CoerceValue(col, r[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CoerceValue converts |v| to the Go type used for values of |col|.
func CoerceValue(col schema.Column, v any) (any, error) {
	if v == nil {
		if !col.Nullable {
			return nil, verr.ErrSchemaMismatch.New("column " + col.Name + " is not nullable")
		}
		return nil, nil
	}

	var out any
	var ok bool
	switch col.Type {
	case schema.Int:
		out, ok = toInt(v)
	case schema.Float:
		out, ok = toFloat(v)
	case schema.String:
		out, ok = v.(string)
	case schema.Bool:
		out, ok = v.(bool)
	case schema.Bytes:
		out, ok = toBytes(v)
	case schema.Timestamp:
		out, ok = toTime(v)
	}

	if !ok {
		return nil, verr.ErrSchemaMismatch.New(fmt.Sprintf("value %v (%T) does not fit column %s", v, v, col))
	}
	return out, nil
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toBytes(v any) ([]byte, bool) {
	switch v := v.(type) {
	case []byte:
		return v, true
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		return b, err == nil
	}
	return nil, false
}

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t.UTC(), err == nil
	}
	return time.Time{}, false
}

// Infer derives a schema from maps of loosely typed values, as decoded from JSON with numbers kept as json.Number.
// Columns are ordered by name. A column with any null is nullable; numbers are int unless one of them is not
// integral.
func Infer(maps []map[string]any) (schema.Schema, error) {
	types := make(map[string]schema.Type)
	nullable := make(map[string]bool)

	for _, m := range maps {
		for k, v := range m {
			if v == nil {
				nullable[k] = true
				if _, ok := types[k]; !ok {
					types[k] = ""
				}
				continue
			}

			t, err := inferType(v)
			if err != nil {
				return schema.Schema{}, verr.ErrSchemaMismatch.New(fmt.Sprintf("column %s: %s", k, err.Error()))
			}

			switch prev := types[k]; {
			case prev == "" || prev == t:
				types[k] = t
			case prev == schema.Int && t == schema.Float, prev == schema.Float && t == schema.Int:
				types[k] = schema.Float
			default:
				return schema.Schema{}, verr.ErrSchemaMismatch.New(fmt.Sprintf("column %s holds both %s and %s values", k, prev, t))
			}
		}
	}

	for _, m := range maps {
		for k := range types {
			if _, ok := m[k]; !ok {
				nullable[k] = true
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]schema.Column, len(names))
	for i, name := range names {
		t := types[name]
		if t == "" {
			t = schema.String
		}
		cols[i] = schema.Column{Name: name, Type: t, Nullable: nullable[name]}
	}
	return schema.New(cols...)
}

func inferType(v any) (schema.Type, error) {
	switch v := v.(type) {
	case bool:
		return schema.Bool, nil
	case string:
		return schema.String, nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return schema.Int, nil
		}
		return schema.Float, nil
	case float64:
		if v == math.Trunc(v) {
			return schema.Int, nil
		}
		return schema.Float, nil
	case int, int64:
		return schema.Int, nil
	}
	return "", fmt.Errorf("unsupported value %v (%T)", v, v)
}
