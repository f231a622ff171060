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

// Package predicate compiles CEL expressions over the columns of a table.
//
// Every column whose name is a valid identifier is declared as a variable of
// the matching CEL type; nullable columns are declared dyn so that they can
// be compared with null. All columns are also reachable through the map
// variable `row`, e.g. row["first-name"].
package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/verr"
)

// RowVar is the name of the map variable holding all columns of the row being evaluated.
const RowVar = "row"

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true, "as": true, "break": true, "const": true,
	"continue": true, "else": true, "for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true, "var": true, "void": true, "while": true,
	RowVar: true,
}

// Predicate is a compiled boolean expression.
type Predicate struct {
	expr    string
	sch     schema.Schema
	program cel.Program
	all     bool
}

// Expr is a compiled expression producing a value.
type Expr struct {
	expr    string
	sch     schema.Schema
	program cel.Program
}

func newEnv(sch schema.Schema) (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CrossTypeNumericComparisons(true),
		cel.Variable(RowVar, cel.MapType(cel.StringType, cel.DynType)),
	}
	for _, col := range sch.Columns {
		if !identRegex.MatchString(col.Name) || reserved[col.Name] {
			continue
		}
		opts = append(opts, cel.Variable(col.Name, celType(col)))
	}
	return cel.NewEnv(opts...)
}

func celType(col schema.Column) *cel.Type {
	if col.Nullable {
		return cel.DynType
	}
	switch col.Type {
	case schema.Int:
		return cel.IntType
	case schema.Float:
		return cel.DoubleType
	case schema.String:
		return cel.StringType
	case schema.Bool:
		return cel.BoolType
	case schema.Bytes:
		return cel.BytesType
	case schema.Timestamp:
		return cel.TimestampType
	}
	return cel.DynType
}

func compile(sch schema.Schema, expr string) (*cel.Ast, cel.Program, error) {
	env, err := newEnv(sch)
	if err != nil {
		return nil, nil, verr.ErrInvalidPredicate.New(expr, err.Error())
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, nil, verr.ErrInvalidPredicate.New(expr, issues.Err().Error())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, nil, verr.ErrInvalidPredicate.New(expr, err.Error())
	}
	return ast, prg, nil
}

// Compile compiles a boolean expression over the columns of |sch|. The empty expression matches every row.
func Compile(sch schema.Schema, expr string) (*Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return &Predicate{sch: sch, all: true}, nil
	}

	ast, prg, err := compile(sch, expr)
	if err != nil {
		return nil, err
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, verr.ErrInvalidPredicate.New(expr, fmt.Sprintf("must return bool, got %v", ast.OutputType()))
	}

	return &Predicate{expr: expr, sch: sch, program: prg}, nil
}

// MatchesAll returns true for the empty predicate.
func (p *Predicate) MatchesAll() bool {
	return p.all
}

func (p *Predicate) String() string {
	return p.expr
}

// Eval returns whether |r| satisfies the predicate.
func (p *Predicate) Eval(r row.Row) (bool, error) {
	if p.all {
		return true, nil
	}

	out, _, err := p.program.Eval(activation(p.sch, r))
	if err != nil {
		return false, verr.ErrInvalidPredicate.New(p.expr, err.Error())
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, verr.ErrInvalidPredicate.New(p.expr, fmt.Sprintf("result is not bool: %T", out.Value()))
	}
	return b, nil
}

// CompileExpr compiles an expression whose result is assigned to a column.
func CompileExpr(sch schema.Schema, expr string) (*Expr, error) {
	_, prg, err := compile(sch, expr)
	if err != nil {
		return nil, err
	}
	return &Expr{expr: expr, sch: sch, program: prg}, nil
}

// Eval returns the value of the expression for |r|.
func (e *Expr) Eval(r row.Row) (any, error) {
	out, _, err := e.program.Eval(activation(e.sch, r))
	if err != nil {
		return nil, verr.ErrInvalidPredicate.New(e.expr, err.Error())
	}
	if _, ok := out.(types.Null); ok {
		return nil, nil
	}
	return out.Value(), nil
}

func activation(sch schema.Schema, r row.Row) map[string]any {
	vars := make(map[string]any, len(r)+1)
	m := r.ToMap(sch)
	for name, v := range m {
		vars[name] = v
	}
	vars[RowVar] = m
	return vars
}
