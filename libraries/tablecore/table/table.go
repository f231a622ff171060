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

// Package table implements the handle through which a versioned table is
// read and written.
//
// A handle is a cursor over the table's version log. It either follows the
// newest version, re-reading the log on every call, or is pinned to one
// historical version by Checkout. Reads resolve against the pin; writes are
// only accepted while following, and each successful write commits exactly
// one new version.
package table

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/dolthub/verdb/libraries/tablecore/predicate"
	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/snapshots"
	"github.com/dolthub/verdb/store/verr"
	"github.com/dolthub/verdb/store/versions"
)

var tracer = otel.Tracer("github.com/dolthub/verdb/libraries/tablecore/table")

// Options configure a handle.
type Options struct {
	Logger  *logrus.Entry
	Metrics *Metrics
}

// Table is a handle on one table. It is safe for concurrent use; handles of the same table that share a
// versions.Log also share its write serialization.
type Table struct {
	name    string
	log     *versions.Log
	snaps   *snapshots.Store
	logger  *logrus.Entry
	metrics *Metrics

	mu     sync.RWMutex
	pin    Pin
	pinned *state
	latest *state
}

// state is one loaded version: its log entry, snapshot record and decoded schema.
type state struct {
	version versions.Version
	snap    snapshots.Snapshot
	sch     schema.Schema
}

// New returns a handle following the latest version of the table whose log is |log|.
func New(log *versions.Log, snaps *snapshots.Store, opts Options) *Table {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{
		name:    log.Table(),
		log:     log,
		snaps:   snaps,
		logger:  logger.WithField("table", log.Table()),
		metrics: opts.Metrics,
		pin:     Following{},
	}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// RefOf returns the snapshot ref recorded by version |v| of |table|.
func RefOf(table string, v versions.Version) snapshots.Ref {
	return snapshots.Ref{Table: table, Lineage: v.Lineage, Version: v.Version, Addr: v.Snapshot}
}

func (t *Table) load(ctx context.Context, ver versions.Version) (*state, error) {
	ref := RefOf(t.name, ver)
	snap, err := t.snaps.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	sch, err := schema.Unmarshal(snap.Schema)
	if err != nil {
		return nil, verr.ErrCorruptRecord.New(ref.String(), err.Error())
	}

	return &state{version: ver, snap: snap, sch: sch}, nil
}

// current resolves the pin to a loaded version.
func (t *Table) current(ctx context.Context) (*state, error) {
	t.mu.RLock()
	pin, pinned, cached := t.pin, t.pinned, t.latest
	t.mu.RUnlock()

	if _, ok := pin.(Pinned); ok {
		return pinned, nil
	}

	ver, err := t.log.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.version.Lineage == ver.Lineage && cached.version.Version == ver.Version {
		return cached, nil
	}

	st, err := t.load(ctx, ver)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.latest = st
	t.mu.Unlock()
	return st, nil
}

// observe counts failures by kind and passes |err| through.
func (t *Table) observe(err error) error {
	if err != nil {
		t.metrics.failure(verr.ErrStorage.Is(err), verr.ErrConcurrentWrite.Is(err))
	}
	return err
}

// Version resolves the pin to a version number. While following, the log is re-read on every call.
func (t *Table) Version(ctx context.Context) (uint64, error) {
	t.mu.RLock()
	pin := t.pin
	t.mu.RUnlock()

	if p, ok := pin.(Pinned); ok {
		return p.Version, nil
	}

	latest, err := t.log.Latest(ctx)
	if err != nil {
		return 0, t.observe(err)
	}
	return latest.Version, nil
}

// ListVersions returns all versions of the table's current lineage in ascending order.
func (t *Table) ListVersions(ctx context.Context) ([]versions.Version, error) {
	vs, err := t.log.List(ctx)
	return vs, t.observe(err)
}

// Lineages returns the table's retired lineages followed by the current one.
func (t *Table) Lineages(ctx context.Context) ([]versions.Lineage, error) {
	ls, err := t.log.Lineages(ctx)
	return ls, t.observe(err)
}

// LineageVersions returns the versions of lineage |id|, which may be retired.
func (t *Table) LineageVersions(ctx context.Context, id string) ([]versions.Version, error) {
	vs, err := t.log.LineageVersions(ctx, id)
	return vs, t.observe(err)
}

// Schema returns the schema at the pinned version.
func (t *Table) Schema(ctx context.Context) (schema.Schema, error) {
	st, err := t.current(ctx)
	if err != nil {
		return schema.Schema{}, t.observe(err)
	}
	return st.sch, nil
}

// CountRows returns the number of rows at the pinned version that satisfy |filter|. The empty filter counts all
// rows without reading any fragment.
func (t *Table) CountRows(ctx context.Context, filter string) (uint64, error) {
	st, err := t.current(ctx)
	if err != nil {
		return 0, t.observe(err)
	}

	p, err := predicate.Compile(st.sch, filter)
	if err != nil {
		return 0, err
	}
	if p.MatchesAll() {
		return st.snap.RowCount(), nil
	}

	rows, err := t.rows(ctx, st)
	if err != nil {
		return 0, t.observe(err)
	}

	var n uint64
	for _, r := range rows {
		ok, err := p.Eval(r)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Rows returns every row at the pinned version in storage order.
func (t *Table) Rows(ctx context.Context) ([]row.Row, error) {
	return t.Filter(ctx, "")
}

// Filter returns the rows at the pinned version that satisfy |filter|.
func (t *Table) Filter(ctx context.Context, filter string) ([]row.Row, error) {
	st, err := t.current(ctx)
	if err != nil {
		return nil, t.observe(err)
	}

	p, err := predicate.Compile(st.sch, filter)
	if err != nil {
		return nil, err
	}

	rows, err := t.rows(ctx, st)
	if err != nil {
		return nil, t.observe(err)
	}
	if p.MatchesAll() {
		return rows, nil
	}

	matched := rows[:0]
	for _, r := range rows {
		ok, err := p.Eval(r)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (t *Table) rows(ctx context.Context, st *state) ([]row.Row, error) {
	frags, err := t.readFragments(ctx, st)
	if err != nil {
		return nil, err
	}

	var out []row.Row
	for _, rows := range frags {
		out = append(out, rows...)
	}
	return out, nil
}

// readFragments decodes every fragment of |st|, in order.
func (t *Table) readFragments(ctx context.Context, st *state) ([][]row.Row, error) {
	datas, err := t.snaps.ReadFragments(ctx, st.snap.Fragments)
	if err != nil {
		return nil, err
	}

	out := make([][]row.Row, len(datas))
	for i, data := range datas {
		rows, err := row.DecodeFragment(st.sch, data)
		if err != nil {
			return nil, verr.ErrCorruptRecord.New(st.snap.Fragments[i].Addr.String(), err.Error())
		}
		out[i] = rows
	}
	return out, nil
}

// CreateTag names version |v| of the current lineage.
func (t *Table) CreateTag(ctx context.Context, name string, v uint64) error {
	return t.observe(t.log.Tag(ctx, name, v))
}

// DeleteTag removes the tag |name|.
func (t *Table) DeleteTag(ctx context.Context, name string) error {
	return t.observe(t.log.DeleteTag(ctx, name))
}

// ListTags returns the table's tags sorted by name.
func (t *Table) ListTags(ctx context.Context) ([]versions.Tag, error) {
	tags, err := t.log.Tags(ctx)
	return tags, t.observe(err)
}

// Close releases the handle's cached state. Persisted data is not affected.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pin = Following{}
	t.pinned = nil
	t.latest = nil
}
