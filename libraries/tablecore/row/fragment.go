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

package row

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dolthub/verdb/libraries/tablecore/schema"
)

// fragment stores rows column by column. Each column is a JSON array holding one element per row, null for nulls.
type fragment struct {
	Rows    int               `json:"rows"`
	Columns []json.RawMessage `json:"columns"`
}

// EncodeFragment encodes |rows|, already coerced to |sch|, into fragment data.
func EncodeFragment(sch schema.Schema, rows []Row) ([]byte, error) {
	frag := fragment{Rows: len(rows), Columns: make([]json.RawMessage, sch.Len())}

	for i, col := range sch.Columns {
		var data []byte
		var err error
		switch col.Type {
		case schema.Int:
			data, err = encodeColumn[int64](col, rows, i)
		case schema.Float:
			data, err = encodeColumn[float64](col, rows, i)
		case schema.String:
			data, err = encodeColumn[string](col, rows, i)
		case schema.Bool:
			data, err = encodeColumn[bool](col, rows, i)
		case schema.Bytes:
			data, err = encodeColumn[[]byte](col, rows, i)
		case schema.Timestamp:
			data, err = encodeColumn[time.Time](col, rows, i)
		default:
			err = fmt.Errorf("unknown type %s of column %s", col.Type, col.Name)
		}
		if err != nil {
			return nil, err
		}
		frag.Columns[i] = data
	}

	return json.Marshal(frag)
}

// DecodeFragment decodes fragment data written by EncodeFragment with the same schema.
func DecodeFragment(sch schema.Schema, data []byte) ([]Row, error) {
	var frag fragment
	if err := json.Unmarshal(data, &frag); err != nil {
		return nil, err
	}
	if len(frag.Columns) != sch.Len() {
		return nil, fmt.Errorf("fragment has %d columns, schema has %d", len(frag.Columns), sch.Len())
	}

	rows := make([]Row, frag.Rows)
	for r := range rows {
		rows[r] = make(Row, sch.Len())
	}

	for i, col := range sch.Columns {
		var err error
		switch col.Type {
		case schema.Int:
			err = decodeColumn[int64](frag.Columns[i], rows, i)
		case schema.Float:
			err = decodeColumn[float64](frag.Columns[i], rows, i)
		case schema.String:
			err = decodeColumn[string](frag.Columns[i], rows, i)
		case schema.Bool:
			err = decodeColumn[bool](frag.Columns[i], rows, i)
		case schema.Bytes:
			err = decodeColumn[[]byte](frag.Columns[i], rows, i)
		case schema.Timestamp:
			err = decodeColumn[time.Time](frag.Columns[i], rows, i)
		default:
			err = fmt.Errorf("unknown type %s", col.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
	}

	return rows, nil
}

func encodeColumn[T any](col schema.Column, rows []Row, i int) ([]byte, error) {
	vals := make([]*T, len(rows))
	for r, row := range rows {
		if row[i] == nil {
			continue
		}
		v, ok := row[i].(T)
		if !ok {
			return nil, fmt.Errorf("row %d: value %v (%T) does not fit column %s", r, row[i], row[i], col)
		}
		vals[r] = &v
	}
	return json.Marshal(vals)
}

func decodeColumn[T any](data []byte, rows []Row, i int) error {
	var vals []*T
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	if len(vals) != len(rows) {
		return fmt.Errorf("holds %d values for %d rows", len(vals), len(rows))
	}
	for r, v := range vals {
		if v != nil {
			rows[r][i] = *v
		}
	}
	return nil
}
