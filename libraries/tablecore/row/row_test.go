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
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/verr"
)

var quotesSch = schema.MustNew(
	schema.Column{Name: "id", Type: schema.Int},
	schema.Column{Name: "author", Type: schema.String, Nullable: true},
	schema.Column{Name: "quote", Type: schema.String},
)

var allTypesSch = schema.MustNew(
	schema.Column{Name: "i", Type: schema.Int, Nullable: true},
	schema.Column{Name: "f", Type: schema.Float, Nullable: true},
	schema.Column{Name: "s", Type: schema.String, Nullable: true},
	schema.Column{Name: "b", Type: schema.Bool, Nullable: true},
	schema.Column{Name: "y", Type: schema.Bytes, Nullable: true},
	schema.Column{Name: "t", Type: schema.Timestamp, Nullable: true},
)

func TestNewBatchCoerces(t *testing.T) {
	b, err := NewBatch(quotesSch,
		Row{1, "Knuth", "premature optimization"},
		Row{json.Number("2"), nil, "hello"},
		Row{float64(3), "Hoare", "null references"},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	for i, r := range b.Rows {
		assert.Equal(t, int64(i+1), r[0])
	}
	assert.Nil(t, b.Rows[1][1])
}

func TestCoerceRejects(t *testing.T) {
	tests := []struct {
		name string
		row  Row
	}{
		{"wrong arity", Row{1, "a"}},
		{"null in not null column", Row{1, "a", nil}},
		{"string for int", Row{"one", "a", "b"}},
		{"fraction for int", Row{1.5, "a", "b"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Coerce(quotesSch, test.row)
			assert.True(t, verr.ErrSchemaMismatch.Is(err), "unexpected error %v", err)
		})
	}
}

func TestFromMapAndToMap(t *testing.T) {
	r, err := FromMap(quotesSch, map[string]any{"id": 7, "quote": "q"})
	require.NoError(t, err)
	assert.Equal(t, Row{int64(7), nil, "q"}, r)
	assert.Equal(t, map[string]any{"id": int64(7), "author": nil, "quote": "q"}, r.ToMap(quotesSch))

	_, err = FromMap(quotesSch, map[string]any{"id": 7, "quote": "q", "extra": true})
	assert.True(t, verr.ErrSchemaMismatch.Is(err))
}

func TestFragmentRoundTrip(t *testing.T) {
	ts := time.Date(2024, 2, 29, 23, 59, 59, 123456789, time.UTC)
	b, err := NewBatch(allTypesSch,
		Row{1, 1.5, "x", true, []byte{0, 1, 2}, ts},
		Row{nil, nil, nil, nil, nil, nil},
		Row{-9000000000000, 0.0, "", false, []byte{}, ts.Add(time.Hour)},
	)
	require.NoError(t, err)

	data, err := EncodeFragment(allTypesSch, b.Rows)
	require.NoError(t, err)

	rows, err := DecodeFragment(allTypesSch, data)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, b.Rows[0], rows[0])
	assert.Equal(t, b.Rows[1], rows[1])
	assert.Equal(t, int64(-9000000000000), rows[2][0])
	assert.True(t, ts.Add(time.Hour).Equal(rows[2][5].(time.Time)))
}

func TestEmptyFragment(t *testing.T) {
	data, err := EncodeFragment(quotesSch, nil)
	require.NoError(t, err)
	rows, err := DecodeFragment(quotesSch, data)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeWithWrongSchema(t *testing.T) {
	data, err := EncodeFragment(quotesSch, []Row{{int64(1), "a", "b"}})
	require.NoError(t, err)

	_, err = DecodeFragment(allTypesSch, data)
	assert.Error(t, err)
}

func TestInfer(t *testing.T) {
	var maps []map[string]any
	for _, line := range []string{
		`{"id": 1, "author": "Knuth", "score": 1}`,
		`{"id": 2, "author": null, "score": 2.5}`,
		`{"id": 3, "live": true}`,
	} {
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		maps = append(maps, m)
	}

	sch, err := Infer(maps)
	require.NoError(t, err)
	assert.Equal(t, []schema.Column{
		{Name: "author", Type: schema.String, Nullable: true},
		{Name: "id", Type: schema.Int},
		{Name: "live", Type: schema.Bool, Nullable: true},
		{Name: "score", Type: schema.Float, Nullable: true},
	}, sch.Columns)

	b, err := BatchFromMaps(sch, maps)
	require.NoError(t, err)
	assert.Equal(t, 2.5, b.Rows[1][3])
}

func TestInferConflict(t *testing.T) {
	_, err := Infer([]map[string]any{{"a": "x"}, {"a": true}})
	assert.True(t, verr.ErrSchemaMismatch.Is(err))
}
