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

package dbcfg

import (
	"fmt"
	"os"
)

type envPlaceholder struct {
	varName      string
	def          []byte
	hasDefault   bool
	closingBrace int
}

// interpolateEnv replaces ${VAR} and ${VAR:-default} with values from the environment. "$$" is a literal '$'.
// An unset variable without a default is an error; an empty one is treated as unset.
func interpolateEnv(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '$' {
			out = append(out, data[i])
			continue
		}

		if i+1 < len(data) && data[i+1] == '$' {
			out = append(out, '$')
			i++
			continue
		}

		if i+1 >= len(data) || data[i+1] != '{' {
			out = append(out, '$')
			continue
		}

		ph, err := parsePlaceholder(data, i)
		if err != nil {
			return nil, err
		}

		out, err = expand(out, ph)
		if err != nil {
			return nil, err
		}
		i = ph.closingBrace
	}

	return out, nil
}

func parsePlaceholder(data []byte, dollarIdx int) (envPlaceholder, error) {
	start := dollarIdx + 2

	closingBrace := start
	for closingBrace < len(data) && data[closingBrace] != '}' {
		closingBrace++
	}
	if closingBrace >= len(data) {
		return envPlaceholder{}, fmt.Errorf("unterminated environment placeholder starting at byte %d", dollarIdx)
	}

	expr := data[start:closingBrace]
	varPart, defPart, hasDefault := expr, []byte(nil), false
	for k := 0; k+1 < len(expr); k++ {
		if expr[k] == ':' && expr[k+1] == '-' {
			varPart, defPart, hasDefault = expr[:k], expr[k+2:], true
			break
		}
	}

	if !isValidEnvVarName(varPart) {
		return envPlaceholder{}, fmt.Errorf("invalid environment variable name %q", string(varPart))
	}

	return envPlaceholder{
		varName:      string(varPart),
		def:          defPart,
		hasDefault:   hasDefault,
		closingBrace: closingBrace,
	}, nil
}

func expand(out []byte, ph envPlaceholder) ([]byte, error) {
	if val, ok := os.LookupEnv(ph.varName); ok && val != "" {
		return append(out, val...), nil
	}

	if ph.hasDefault {
		def, err := interpolateEnv(ph.def)
		if err != nil {
			return nil, err
		}
		return append(out, def...), nil
	}

	return nil, fmt.Errorf("environment variable %q is not set", ph.varName)
}

func isValidEnvVarName(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for i, c := range b {
		letter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
		if !letter && (i == 0 || c < '0' || c > '9') {
			return false
		}
	}
	return true
}
