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

// Package schema describes the columns of a table.
package schema

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dolthub/verdb/store/verr"
)

// Type is the kind of value a column holds.
type Type string

const (
	Int       Type = "int"
	Float     Type = "float"
	String    Type = "string"
	Bool      Type = "bool"
	Bytes     Type = "bytes"
	Timestamp Type = "timestamp"
)

var knownTypes = map[Type]bool{Int: true, Float: true, String: true, Bool: true, Bytes: true, Timestamp: true}

// ParseType parses a type name case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !knownTypes[t] {
		return "", fmt.Errorf("unknown column type %q", s)
	}
	return t, nil
}

// Column is one named, typed column.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     Type   `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable"`
}

func (c Column) String() string {
	if c.Nullable {
		return fmt.Sprintf("%s %s null", c.Name, c.Type)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

// Schema is an ordered list of columns with unique names.
type Schema struct {
	Columns []Column `json:"columns"`
}

// New validates |cols| and returns a Schema holding them.
func New(cols ...Column) (Schema, error) {
	if len(cols) == 0 {
		return Schema{}, verr.ErrSchemaMismatch.New("a schema needs at least one column")
	}

	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if col.Name == "" {
			return Schema{}, verr.ErrSchemaMismatch.New("column names cannot be empty")
		}
		if seen[col.Name] {
			return Schema{}, verr.ErrSchemaMismatch.New("duplicate column " + col.Name)
		}
		if !knownTypes[col.Type] {
			return Schema{}, verr.ErrSchemaMismatch.New(fmt.Sprintf("column %s has unknown type %q", col.Name, col.Type))
		}
		seen[col.Name] = true
	}

	return Schema{Columns: append([]Column(nil), cols...)}, nil
}

// MustNew is New for schemas known to be valid.
func MustNew(cols ...Column) Schema {
	sch, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return sch
}

// Parse reads a schema from a comma separated list of "name:type" pairs, with an optional "?" suffix on the type
// for nullable columns, e.g. "id:int,author:string?".
func Parse(s string) (Schema, error) {
	var cols []Column
	for _, part := range strings.Split(s, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return Schema{}, verr.ErrSchemaMismatch.New(fmt.Sprintf("column %q is not name:type", part))
		}

		nullable := strings.HasSuffix(typ, "?")
		t, err := ParseType(strings.TrimSuffix(typ, "?"))
		if err != nil {
			return Schema{}, verr.ErrSchemaMismatch.New(err.Error())
		}
		cols = append(cols, Column{Name: strings.TrimSpace(name), Type: t, Nullable: nullable})
	}
	return New(cols...)
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.Columns)
}

// Index returns the position of the column |name|.
func (s Schema) Index(name string) (int, bool) {
	for i, col := range s.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// Equal returns true if both schemas have the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	strs := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		strs[i] = col.String()
	}
	return "(" + strings.Join(strs, ", ") + ")"
}

// Marshal encodes the schema for storage in a snapshot.
func (s Schema) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a schema written by Marshal.
func Unmarshal(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, err
	}
	return New(s.Columns...)
}
