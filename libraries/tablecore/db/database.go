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

// Package db manages a connected database: a catalog of table names over
// one manifest and one blobstore, shared by every table handle it opens.
package db

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/table"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
	"github.com/dolthub/verdb/store/snapshots"
	"github.com/dolthub/verdb/store/verr"
	"github.com/dolthub/verdb/store/versions"
)

// MaxTableNameLen is the longest accepted table name.
const MaxTableNameLen = 128

var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// CreateMode selects what CreateTable does when the table already exists.
type CreateMode int

const (
	// Create fails with ErrAlreadyExists if the table exists.
	Create CreateMode = iota

	// Overwrite replaces the table's history with a new lineage starting at version 1.
	Overwrite

	// ExistOk opens the existing table and ignores the initial data.
	ExistOk
)

func (m CreateMode) String() string {
	switch m {
	case Create:
		return "create"
	case Overwrite:
		return "overwrite"
	case ExistOk:
		return "exist_ok"
	default:
		return "invalid"
	}
}

// CreateModeFromStr parses a mode name as returned by CreateMode.String. The empty string is Create.
func CreateModeFromStr(str string) (CreateMode, bool) {
	switch strings.TrimSpace(strings.ToLower(str)) {
	case "", "create":
		return Create, true
	case "overwrite":
		return Overwrite, true
	case "exist_ok", "existok", "exist-ok":
		return ExistOk, true
	default:
		return Create, false
	}
}

// CreateOptions configure CreateTable.
type CreateOptions struct {
	Mode     CreateMode
	Metadata map[string]string
}

// Options configure a Database.
type Options struct {
	Logger     *logrus.Entry
	Registerer prometheus.Registerer
	// CacheSize is the number of fragments kept in the read cache. Zero selects the default.
	CacheSize int
	// Clock stamps new versions. Nil uses time.Now.
	Clock versions.Clock
}

// Database is a connected store holding any number of tables.
type Database struct {
	name    string
	m       manifest.Manifest
	snaps   *snapshots.Store
	logger  *logrus.Entry
	metrics *table.Metrics
	clock   versions.Clock

	mu      sync.Mutex
	ddl     sync.Mutex
	logs    map[string]*versions.Log
	closers []io.Closer
	closed  bool
}

// New returns a database storing snapshots in |bs| and version logs and the catalog in |m|.
func New(name string, bs blobstore.Blobstore, m manifest.Manifest, opts Options) (*Database, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("database", name)

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = snapshots.DefaultCacheSize
	}
	snaps, err := snapshots.NewStore(bs, cacheSize, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := table.NewMetrics(opts.Registerer, prometheus.Labels{"database": name})
	if err != nil {
		return nil, err
	}

	return &Database{
		name:    name,
		m:       m,
		snaps:   snaps,
		logger:  logger,
		metrics: metrics,
		clock:   opts.Clock,
		logs:    map[string]*versions.Log{},
	}, nil
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// AddCloser registers |c| to be closed, in reverse order of registration, by Close.
func (db *Database) AddCloser(c io.Closer) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closers = append(db.closers, c)
}

// ValidateTableName returns ErrInvalidTableName unless |name| can be used as a table name.
func ValidateTableName(name string) error {
	if len(name) == 0 || len(name) > MaxTableNameLen || !tableNameRegex.MatchString(name) || name == "." || name == ".." {
		return verr.ErrInvalidTableName.New(name)
	}
	return nil
}

// versionLog returns the log shared by every handle of |name| opened from this database.
func (db *Database) versionLog(name string) (*versions.Log, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, verr.ErrDatabaseClosed.New(db.name)
	}

	if l, ok := db.logs[name]; ok {
		return l, nil
	}

	opts := []versions.Option{versions.WithLogger(db.logger)}
	if db.clock != nil {
		opts = append(opts, versions.WithClock(db.clock))
	}
	l := versions.New(name, db.m, opts...)
	db.logs[name] = l
	return l, nil
}

func (db *Database) handle(name string) (*table.Table, error) {
	l, err := db.versionLog(name)
	if err != nil {
		return nil, err
	}
	return table.New(l, db.snaps, table.Options{Logger: db.logger, Metrics: db.metrics}), nil
}

func (db *Database) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return verr.ErrDatabaseClosed.New(db.name)
	}
	return nil
}

// CreateTable creates |name| with |batch| as version 1 and returns a handle following it. What happens when the
// table exists depends on opts.Mode. A failed create leaves any existing table as it was.
func (db *Database) CreateTable(ctx context.Context, name string, batch row.Batch, opts CreateOptions) (*table.Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	db.ddl.Lock()
	defer db.ddl.Unlock()

	cat, _, err := loadCatalog(ctx, db.m)
	if err != nil {
		return nil, err
	}

	tbl, err := db.handle(name)
	if err != nil {
		return nil, err
	}

	writeOpts := []table.WriteOption{table.WithMetadata(opts.Metadata)}
	if cat.has(name) {
		switch opts.Mode {
		case Create:
			return nil, verr.ErrAlreadyExists.New("table", name)
		case ExistOk:
			sch, err := tbl.Schema(ctx)
			if err != nil {
				return nil, err
			}
			if batch.Schema.Len() > 0 && !batch.Schema.Equal(sch) {
				return nil, verr.ErrSchemaMismatch.New("table " + name + " exists with schema " + sch.String())
			}
			db.logger.WithField("table", name).Debug("opened existing table")
			return tbl, nil
		case Overwrite:
			ver, err := tbl.Reset(ctx, batch, versions.OpOverwrite, writeOpts...)
			if err != nil {
				return nil, err
			}
			db.logger.WithFields(logrus.Fields{"table": name, "lineage": ver.Lineage}).Info("overwrote table")
			return tbl, nil
		default:
			return nil, verr.ErrAlreadyExists.New("table", name)
		}
	}

	// a log left behind by a dropped table is retired by the new lineage
	ver, err := tbl.Reset(ctx, batch, versions.OpCreate, writeOpts...)
	if err != nil {
		return nil, err
	}

	err = editCatalog(ctx, db.m, func(cat catalog) error {
		if cat.has(name) {
			return verr.ErrAlreadyExists.New("table", name)
		}
		cat.Tables[name] = catalogEntry{Created: ver.Timestamp}
		return nil
	})
	if err != nil {
		return nil, err
	}

	db.logger.WithFields(logrus.Fields{"table": name, "lineage": ver.Lineage}).Info("created table")
	return tbl, nil
}

// OpenTable returns a handle following the latest version of |name|.
func (db *Database) OpenTable(ctx context.Context, name string) (*table.Table, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	cat, _, err := loadCatalog(ctx, db.m)
	if err != nil {
		return nil, err
	}
	if !cat.has(name) {
		return nil, verr.ErrTableNotFound.New(name)
	}
	return db.handle(name)
}

// HasTable returns whether |name| is in the catalog.
func (db *Database) HasTable(ctx context.Context, name string) (bool, error) {
	cat, _, err := loadCatalog(ctx, db.m)
	if err != nil {
		return false, err
	}
	return cat.has(name), nil
}

// TableNames returns the names of all tables, sorted.
func (db *Database) TableNames(ctx context.Context) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	cat, _, err := loadCatalog(ctx, db.m)
	if err != nil {
		return nil, err
	}
	return cat.names(), nil
}

// TableCreated returns when |name| was added to the catalog.
func (db *Database) TableCreated(ctx context.Context, name string) (time.Time, error) {
	cat, _, err := loadCatalog(ctx, db.m)
	if err != nil {
		return time.Time{}, err
	}
	entry, ok := cat.Tables[name]
	if !ok {
		return time.Time{}, verr.ErrTableNotFound.New(name)
	}
	return entry.Created, nil
}

// DropTable removes |name| from the catalog. Its versions and snapshots stay in storage, and handles that are
// already open keep working against them.
func (db *Database) DropTable(ctx context.Context, name string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}
	if err := db.checkOpen(); err != nil {
		return err
	}

	db.ddl.Lock()
	defer db.ddl.Unlock()

	err := editCatalog(ctx, db.m, func(cat catalog) error {
		if !cat.has(name) {
			return verr.ErrTableNotFound.New(name)
		}
		delete(cat.Tables, name)
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.WithField("table", name).Info("dropped table")
	return nil
}

// Close releases the database's storage clients. Further operations return ErrDatabaseClosed.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	db.logs = nil

	var firstErr error
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.closers = nil
	return firstErr
}
