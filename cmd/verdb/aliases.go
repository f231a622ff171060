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

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// AliasFile is the name of the file mapping database aliases to storage urls. It is looked up in the working
	// directory and its parents.
	AliasFile = ".verdbconfig"

	// DefaultDbAlias names the database used when no --db flag is given.
	DefaultDbAlias = "default"
)

var ErrNoAliasFile = errors.New("no " + AliasFile + " found")

// Aliases is the contents of an alias file.
type Aliases struct {
	File string              `toml:"-"`
	Db   map[string]DbConfig `toml:"db"`
}

type DbConfig struct {
	Url string `toml:"url"`
}

// FindAliases loads the nearest alias file at or above |dir|.
func FindAliases(dir string) (*Aliases, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, AliasFile)
		if _, err := os.Stat(path); err == nil {
			return ReadAliases(path)
		} else if !os.IsNotExist(err) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoAliasFile
		}
		dir = parent
	}
}

// ReadAliases loads the alias file at |path|.
func ReadAliases(path string) (*Aliases, error) {
	var a Aliases
	if _, err := toml.DecodeFile(path, &a); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	a.File = path
	return &a, nil
}

// Resolve returns the url of alias |name|, or |name| itself when it is not an alias. The empty name resolves the
// default alias, if there is one.
func (a *Aliases) Resolve(name string) (string, bool) {
	if a == nil {
		return name, name != ""
	}
	if name == "" {
		name = DefaultDbAlias
	}
	if db, ok := a.Db[name]; ok {
		return db.Url, true
	}
	if name == DefaultDbAlias {
		return "", false
	}
	return name, true
}

// WriteTo writes the aliases to |dir|/.verdbconfig.
func (a *Aliases) WriteTo(dir string) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(a); err != nil {
		return "", err
	}

	path := filepath.Join(dir, AliasFile)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Aliases) String() string {
	names := make([]string, 0, len(a.Db))
	for name := range a.Db {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "file: %s\n", a.File)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\n", name, a.Db[name].Url)
	}
	return sb.String()
}
