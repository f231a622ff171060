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

package versions

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dolthub/verdb/store/hash"
	"github.com/dolthub/verdb/store/manifest"
	"github.com/dolthub/verdb/store/verr"
)

var tracer = otel.Tracer("github.com/dolthub/verdb/store/versions")

const (
	logPrefix     = "log/"
	archiveSuffix = "@"
)

func docName(table string) string {
	return logPrefix + table
}

func archiveName(table, lineage string) string {
	return logPrefix + table + archiveSuffix + lineage
}

// Clock returns the time stamped on new versions.
type Clock func() time.Time

// BuildFunc produces the entry for the version described by |p|. It runs while the log's write section is held,
// after the next version number is known, and typically persists the snapshot that the entry references. An error
// aborts the append and leaves the log unchanged.
type BuildFunc func(ctx context.Context, p Pending) (Entry, error)

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used to stamp versions.
func WithClock(clock Clock) Option {
	return func(l *Log) {
		l.clock = clock
	}
}

// WithLogger sets the logger used for commit and failure messages.
func WithLogger(logger *logrus.Entry) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Log is the version log of one table. Appends (including tag changes and new lineages) are serialized by an
// exclusive section; reads never take it and always refresh from the manifest.
type Log struct {
	table  string
	m      manifest.Manifest
	clock  Clock
	logger *logrus.Entry

	mu sync.Mutex
}

// New returns the log of |table| persisted in |m|.
func New(table string, m manifest.Manifest, opts ...Option) *Log {
	l := &Log{
		table:  table,
		m:      m,
		clock:  time.Now,
		logger: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithField("table", table)
	return l
}

// Table returns the name of the table this log belongs to.
func (l *Log) Table() string {
	return l.table
}

// Append commits |entry| as the next version of the current lineage.
func (l *Log) Append(ctx context.Context, entry Entry) (Version, error) {
	return l.AppendFunc(ctx, func(context.Context, Pending) (Entry, error) {
		return entry, nil
	})
}

// AppendFunc commits the entry produced by |build| as the next version of the current lineage. The new version is
// max + 1, or 1 for an empty log. No entry exists afterwards if |build| or the manifest update fail.
func (l *Log) AppendFunc(ctx context.Context, build BuildFunc) (Version, error) {
	ctx, span := tracer.Start(ctx, "versions.Append", trace.WithAttributes(attribute.String("table", l.table)))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, lock, err := l.load(ctx)
	if err != nil {
		return Version{}, storageErr(err, "append")
	}

	if doc.Lineage == "" {
		doc.Lineage = uuid.NewString()
		doc.Started = l.clock()
	}

	return l.appendLocked(ctx, "append", &doc, lock, build)
}

// StartLineage retires the current lineage and commits |entry| as version 1 of a new one.
func (l *Log) StartLineage(ctx context.Context, entry Entry) (Version, error) {
	return l.StartLineageFunc(ctx, func(context.Context, Pending) (Entry, error) {
		return entry, nil
	})
}

// StartLineageFunc retires the current lineage, if it has any versions, and commits the entry produced by |build|
// as version 1 of a new lineage. The retired lineage's versions are archived before the log is switched over, and
// the switch is a single manifest update.
func (l *Log) StartLineageFunc(ctx context.Context, build BuildFunc) (Version, error) {
	ctx, span := tracer.Start(ctx, "versions.StartLineage", trace.WithAttributes(attribute.String("table", l.table)))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, lock, err := l.load(ctx)
	if err != nil {
		return Version{}, storageErr(err, "start lineage")
	}

	now := l.clock()
	if doc.Lineage != "" && len(doc.Versions) > 0 {
		retired := doc.currentLineage()
		retired.Current = false
		retired.Retired = now

		if err := l.archive(ctx, retired, doc.Versions); err != nil {
			return Version{}, err
		}
		doc.Retired = append(doc.Retired, retired)
		l.logger.WithFields(logrus.Fields{"lineage": retired.ID, "versions": retired.Versions}).Debug("retired lineage")
	}

	doc.Lineage = uuid.NewString()
	doc.Started = now
	doc.Versions = nil
	doc.Tags = nil

	return l.appendLocked(ctx, "start lineage", &doc, lock, build)
}

func (l *Log) appendLocked(ctx context.Context, op string, doc *document, lock hash.Hash, build BuildFunc) (Version, error) {
	p := Pending{
		Table:     l.table,
		Lineage:   doc.Lineage,
		Version:   1,
		Timestamp: l.stamp(doc),
	}
	if last, ok := doc.latest(); ok {
		p.Version = last.Version + 1
		p.Previous = &last
	}
	next := p.Version

	entry, err := build(ctx, p)
	if err != nil {
		return Version{}, err
	}

	if err := ctx.Err(); err != nil {
		return Version{}, err
	}

	v := Version{
		Version:   next,
		Timestamp: p.Timestamp,
		Metadata:  entry.Metadata,
		Snapshot:  entry.Snapshot,
		Op:        entry.Op,
		Lineage:   doc.Lineage,
	}
	doc.Versions = append(doc.Versions, v)

	if err := l.commit(ctx, op, lock, doc); err != nil {
		return Version{}, err
	}

	l.logger.WithFields(logrus.Fields{
		"version": v.Version,
		"lineage": v.Lineage,
		"op":      v.Op,
	}).Debug("committed version")

	return v, nil
}

// stamp returns the timestamp for the next version of |doc|, never earlier than the current latest.
func (l *Log) stamp(doc *document) time.Time {
	now := l.clock()
	if last, ok := doc.latest(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

// List returns the versions of the current lineage in ascending order.
func (l *Log) List(ctx context.Context) ([]Version, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return nil, storageErr(err, "list versions")
	}
	return doc.Versions, nil
}

// Latest returns the newest version, or ErrEmptyLog.
func (l *Log) Latest(ctx context.Context) (Version, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return Version{}, storageErr(err, "read latest version")
	}

	latest, ok := doc.latest()
	if !ok {
		return Version{}, verr.ErrEmptyLog.New(l.table)
	}
	return latest, nil
}

// Get returns version |v| of the current lineage, or ErrVersionNotFound.
func (l *Log) Get(ctx context.Context, v uint64) (Version, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return Version{}, storageErr(err, "read version")
	}

	found, ok := doc.find(v)
	if !ok {
		return Version{}, verr.ErrVersionNotFound.New(v, l.table)
	}
	return found, nil
}

// Lineages returns the retired lineages, oldest first, followed by the current one.
func (l *Log) Lineages(ctx context.Context) ([]Lineage, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return nil, storageErr(err, "list lineages")
	}

	lineages := make([]Lineage, 0, len(doc.Retired)+1)
	lineages = append(lineages, doc.Retired...)
	if doc.Lineage != "" {
		lineages = append(lineages, doc.currentLineage())
	}
	return lineages, nil
}

// LineageVersions returns the versions of lineage |id|, which may be current or retired.
func (l *Log) LineageVersions(ctx context.Context, id string) ([]Version, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return nil, storageErr(err, "list lineage versions")
	}
	if id == doc.Lineage {
		return doc.Versions, nil
	}

	exists, contents, err := l.m.ParseIfExists(ctx, archiveName(l.table, id))
	if err != nil {
		return nil, storageErr(err, "list lineage versions")
	}
	if !exists {
		return nil, verr.ErrLineageNotFound.New(id, l.table)
	}

	var arch archive
	if err := json.Unmarshal(contents.Data, &arch); err != nil {
		return nil, verr.ErrCorruptRecord.New(archiveName(l.table, id), err.Error())
	}
	return arch.Versions, nil
}

func (l *Log) load(ctx context.Context) (document, hash.Hash, error) {
	name := docName(l.table)
	exists, contents, err := l.m.ParseIfExists(ctx, name)
	if err != nil {
		return document{}, hash.Hash{}, err
	}
	if !exists {
		return document{Table: l.table}, hash.Hash{}, nil
	}

	var doc document
	if err := json.Unmarshal(contents.Data, &doc); err != nil {
		return document{}, hash.Hash{}, verr.ErrCorruptRecord.New(name, err.Error())
	}
	return doc, contents.Lock, nil
}

func (l *Log) commit(ctx context.Context, op string, lastLock hash.Hash, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return verr.ErrStorage.Wrap(err, op)
	}

	newContents := manifest.NewContents(data)
	upstream, err := l.m.Update(ctx, docName(l.table), lastLock, newContents)
	if err != nil {
		l.logger.WithError(err).Warnf("%s failed", op)
		return verr.ErrStorage.Wrap(err, op)
	}

	if upstream.Lock != newContents.Lock {
		l.logger.Warnf("%s lost a race with another writer", op)
		return verr.ErrConcurrentWrite.New(l.table)
	}
	return nil
}

func (l *Log) archive(ctx context.Context, lin Lineage, versions []Version) error {
	name := archiveName(l.table, lin.ID)
	data, err := json.Marshal(archive{Table: l.table, Lineage: lin, Versions: versions})
	if err != nil {
		return verr.ErrStorage.Wrap(err, "archive lineage")
	}

	// an earlier attempt that failed after archiving may have left a shorter copy behind
	_, existing, err := l.m.ParseIfExists(ctx, name)
	if err != nil {
		return verr.ErrStorage.Wrap(err, "archive lineage")
	}

	newContents := manifest.NewContents(data)
	upstream, err := l.m.Update(ctx, name, existing.Lock, newContents)
	if err != nil {
		return verr.ErrStorage.Wrap(err, "archive lineage")
	}
	if upstream.Lock != newContents.Lock {
		return verr.ErrConcurrentWrite.New(l.table)
	}
	return nil
}

// storageErr passes through errors that already carry a kind and wraps everything else as ErrStorage.
func storageErr(err error, op string) error {
	if verr.ErrCorruptRecord.Is(err) {
		return err
	}
	return verr.ErrStorage.Wrap(err, op)
}
