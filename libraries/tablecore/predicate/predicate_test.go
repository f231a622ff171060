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

package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/verr"
)

var testSch = schema.MustNew(
	schema.Column{Name: "id", Type: schema.Int},
	schema.Column{Name: "author", Type: schema.String, Nullable: true},
	schema.Column{Name: "score", Type: schema.Float},
	schema.Column{Name: "posted-at", Type: schema.Timestamp},
)

var posted = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testRow(id int64, author any, score float64) row.Row {
	return row.Row{id, author, score, posted}
}

func TestPredicateEval(t *testing.T) {
	tests := []struct {
		expr     string
		r        row.Row
		expected bool
	}{
		{"", testRow(1, "a", 0), true},
		{"id == 1", testRow(1, "a", 0), true},
		{"id > 1", testRow(1, "a", 0), false},
		{"author == null", testRow(1, nil, 0), true},
		{"author == 'Knuth'", testRow(1, "Knuth", 0), true},
		{"score > 1", testRow(1, nil, 1.5), true},
		{"id in [2, 3] || score < 0.5", testRow(1, nil, 0.25), true},
		{`row["posted-at"] < timestamp("2025-01-01T00:00:00Z")`, testRow(1, nil, 0), true},
		{`author.startsWith("Kn")`, testRow(1, "Knuth", 0), true},
	}

	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			p, err := Compile(testSch, test.expr)
			require.NoError(t, err)
			actual, err := p.Eval(test.r)
			require.NoError(t, err)
			assert.Equal(t, test.expected, actual)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{"id +", "id + 1", "nope == 1", "author"} {
		_, err := Compile(testSch, expr)
		assert.True(t, verr.ErrInvalidPredicate.Is(err), "expression %q: %v", expr, err)
	}
}

func TestEvalErrorIsInvalidPredicate(t *testing.T) {
	p, err := Compile(testSch, `author.startsWith("K")`)
	require.NoError(t, err)
	_, err = p.Eval(testRow(1, nil, 0))
	assert.True(t, verr.ErrInvalidPredicate.Is(err))
}

func TestExpr(t *testing.T) {
	e, err := CompileExpr(testSch, "score * 2.0")
	require.NoError(t, err)
	v, err := e.Eval(testRow(1, nil, 1.25))
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	e, err = CompileExpr(testSch, "null")
	require.NoError(t, err)
	v, err = e.Eval(testRow(1, nil, 0))
	require.NoError(t, err)
	assert.Nil(t, v)

	e, err = CompileExpr(testSch, `"by " + (author == null ? "anon" : string(author))`)
	require.NoError(t, err)
	v, err = e.Eval(testRow(1, nil, 0))
	require.NoError(t, err)
	assert.Equal(t, "by anon", v)
}
