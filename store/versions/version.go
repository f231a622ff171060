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

// Package versions implements the per-table version log: the ordered,
// append-only record of a table's versions. Appending to the log is the
// commit point of every write. The whole log of a table is one manifest
// document, so an append is a single compare-and-swap of that document.
package versions

import (
	"sort"
	"time"

	"github.com/dolthub/verdb/store/hash"
)

// Op names the operation that produced a version.
type Op string

const (
	OpCreate    Op = "create"
	OpAppend    Op = "append"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpRestore   Op = "restore"
	OpOverwrite Op = "overwrite"
)

// Version is one immutable entry of a version log.
type Version struct {
	Version   uint64            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Snapshot  hash.Hash         `json:"snapshot"`
	Op        Op                `json:"op"`
	Lineage   string            `json:"lineage"`
}

// Entry is what a writer supplies for a new version. The log assigns the number and the timestamp.
type Entry struct {
	Snapshot hash.Hash
	Op       Op
	Metadata map[string]string
}

// Pending describes the version a writer is about to create, before it has been committed.
type Pending struct {
	Table     string
	Lineage   string
	Version   uint64
	Timestamp time.Time

	// Previous is the current latest version, nil when the new version starts a lineage.
	Previous *Version
}

// Lineage summarizes one continuous history of a table. A table has exactly one current lineage; earlier ones were
// retired by an overwrite and are kept for audit.
type Lineage struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Retired  time.Time `json:"retired"`
	Versions uint64    `json:"versions"`
	Current  bool      `json:"-"`
}

// Tag is a named reference to a version of the current lineage.
type Tag struct {
	Name    string
	Version uint64
}

// document is the persisted form of a table's log.
type document struct {
	Table    string            `json:"table"`
	Lineage  string            `json:"lineage"`
	Started  time.Time         `json:"started"`
	Versions []Version         `json:"versions"`
	Tags     map[string]uint64 `json:"tags,omitempty"`
	Retired  []Lineage         `json:"retired,omitempty"`
}

// archive is the persisted form of a retired lineage.
type archive struct {
	Table    string    `json:"table"`
	Lineage  Lineage   `json:"lineage"`
	Versions []Version `json:"versions"`
}

func (doc *document) latest() (Version, bool) {
	if len(doc.Versions) == 0 {
		return Version{}, false
	}
	return doc.Versions[len(doc.Versions)-1], true
}

// find locates |v| by position; versions within a lineage are gapless and start at 1.
func (doc *document) find(v uint64) (Version, bool) {
	if v == 0 || v > uint64(len(doc.Versions)) {
		return Version{}, false
	}
	found := doc.Versions[v-1]
	return found, found.Version == v
}

func (doc *document) currentLineage() Lineage {
	return Lineage{
		ID:       doc.Lineage,
		Started:  doc.Started,
		Versions: uint64(len(doc.Versions)),
		Current:  true,
	}
}

func (doc *document) tagList() []Tag {
	tags := make([]Tag, 0, len(doc.Tags))
	for name, v := range doc.Tags {
		tags = append(tags, Tag{name, v})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}
