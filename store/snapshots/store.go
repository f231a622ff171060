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

// Package snapshots persists the immutable state of each table version. A
// snapshot record names the table's schema and the ordered list of row
// fragments that make up its data. Fragments are content-addressed and
// shared between snapshots; both kinds of record are written once and never
// modified.
package snapshots

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/hash"
	"github.com/dolthub/verdb/store/verr"
)

var tracer = otel.Tracer("github.com/dolthub/verdb/store/snapshots")

const (
	snapshotPrefix = "snapshots"
	fragmentPrefix = "fragments"

	// DefaultCacheSize is the number of decoded fragments kept in memory.
	DefaultCacheSize = 256

	fetchConcurrency = 8
)

// FragmentRef identifies a fragment and the number of rows it holds.
type FragmentRef struct {
	Addr hash.Hash `json:"addr"`
	Rows uint64    `json:"rows"`
}

// Snapshot is the full state of a table at one version.
type Snapshot struct {
	Table     string          `json:"table"`
	Lineage   string          `json:"lineage"`
	Version   uint64          `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Schema    json.RawMessage `json:"schema"`
	Fragments []FragmentRef   `json:"fragments"`
	Nonce     string          `json:"nonce"`
}

// RowCount returns the number of rows across all fragments.
func (s Snapshot) RowCount() uint64 {
	var n uint64
	for _, f := range s.Fragments {
		n += f.Rows
	}
	return n
}

// Ref addresses one snapshot record. Addr is the hash of the snapshot's encoding.
type Ref struct {
	Table   string
	Lineage string
	Version uint64
	Addr    hash.Hash
}

func (r Ref) key() string {
	return path.Join(snapshotPrefix, r.Table, r.Lineage, fmt.Sprintf("%d-%s", r.Version, r.Addr.String()))
}

func (r Ref) String() string {
	return r.key()
}

func fragmentKey(addr hash.Hash) string {
	return path.Join(fragmentPrefix, addr.String())
}

// NewRef returns the ref under which |snap| will be stored, first giving it a nonce if it has none. With the nonce,
// a retried write of the same version never collides with an earlier attempt's record.
func NewRef(snap *Snapshot) (Ref, error) {
	if snap.Nonce == "" {
		snap.Nonce = uuid.NewString()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Table: snap.Table, Lineage: snap.Lineage, Version: snap.Version, Addr: hash.Of(data)}, nil
}

// Store reads and writes snapshot and fragment records in a blobstore.
type Store struct {
	bs     blobstore.Blobstore
	cache  *lru.Cache[hash.Hash, []byte]
	logger *logrus.Entry
}

// NewStore returns a Store over |bs| caching up to |cacheSize| decoded fragments.
func NewStore(bs blobstore.Blobstore, cacheSize int, logger *logrus.Entry) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[hash.Hash, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{bs: bs, cache: cache, logger: logger}, nil
}

// Put writes |snap| under |ref|. A snapshot is written at most once; an existing record is ErrDuplicateVersion.
func (s *Store) Put(ctx context.Context, ref Ref, snap Snapshot) error {
	ctx, span := tracer.Start(ctx, "snapshots.Put", trace.WithAttributes(
		attribute.String("table", ref.Table),
		attribute.Int64("version", int64(ref.Version))))
	defer span.End()

	if snap.Table != ref.Table || snap.Version != ref.Version || snap.Lineage != ref.Lineage {
		return fmt.Errorf("snapshot of %s version %d does not match ref %s", snap.Table, snap.Version, ref)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return verr.ErrStorage.Wrap(err, "encode snapshot")
	}
	if hash.Of(data) != ref.Addr {
		return fmt.Errorf("snapshot of %s version %d does not hash to ref %s", snap.Table, snap.Version, ref)
	}

	_, err = blobstore.CheckAndPutBytes(ctx, s.bs, "", ref.key(), encodeRecord(kindSnapshot, data))
	if blobstore.IsCheckAndPutError(err) {
		return verr.ErrDuplicateVersion.New(ref.Version, ref.Table)
	} else if err != nil {
		s.logger.WithError(err).WithField("key", ref.key()).Warn("failed to write snapshot")
		return verr.ErrStorage.Wrap(err, "write snapshot")
	}
	return nil
}

// Get reads the snapshot stored under |ref|, verifying the record checksum, its address and that it describes
// the version the ref names.
func (s *Store) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "snapshots.Get", trace.WithAttributes(
		attribute.String("table", ref.Table),
		attribute.Int64("version", int64(ref.Version))))
	defer span.End()

	key := ref.key()
	buff, _, err := blobstore.GetBytes(ctx, s.bs, key, blobstore.AllRange)
	if blobstore.IsNotFoundError(err) {
		return Snapshot{}, verr.ErrVersionNotFound.New(ref.Version, ref.Table)
	} else if err != nil {
		return Snapshot{}, verr.ErrStorage.Wrap(err, "read snapshot")
	}

	data, err := decodeRecord(key, kindSnapshot, buff)
	if err != nil {
		return Snapshot{}, err
	}
	if hash.Of(data) != ref.Addr {
		return Snapshot{}, verr.ErrCorruptRecord.New(key, "address mismatch")
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, verr.ErrCorruptRecord.New(key, err.Error())
	}
	if snap.Version != ref.Version || snap.Table != ref.Table {
		return Snapshot{}, verr.ErrCorruptRecord.New(key, fmt.Sprintf("record describes %s version %d", snap.Table, snap.Version))
	}
	return snap, nil
}

// PutFragment stores an encoded batch of |rows| rows. Fragments are content-addressed, so writing the same data
// twice is a no-op.
func (s *Store) PutFragment(ctx context.Context, data []byte, rows uint64) (FragmentRef, error) {
	ref := FragmentRef{Addr: hash.Of(data), Rows: rows}
	key := fragmentKey(ref.Addr)

	exists, err := s.bs.Exists(ctx, key)
	if err != nil {
		return FragmentRef{}, verr.ErrStorage.Wrap(err, "write fragment")
	}

	if !exists {
		_, err = blobstore.CheckAndPutBytes(ctx, s.bs, "", key, encodeRecord(kindFragment, data))
		if err != nil && !blobstore.IsCheckAndPutError(err) {
			s.logger.WithError(err).WithField("key", key).Warn("failed to write fragment")
			return FragmentRef{}, verr.ErrStorage.Wrap(err, "write fragment")
		}
	}

	s.cache.Add(ref.Addr, data)
	return ref, nil
}

// ReadFragment returns the decoded data of the fragment |ref|.
func (s *Store) ReadFragment(ctx context.Context, ref FragmentRef) ([]byte, error) {
	if data, ok := s.cache.Get(ref.Addr); ok {
		return data, nil
	}

	key := fragmentKey(ref.Addr)
	buff, _, err := blobstore.GetBytes(ctx, s.bs, key, blobstore.AllRange)
	if blobstore.IsNotFoundError(err) {
		return nil, verr.ErrCorruptRecord.New(key, "referenced fragment is missing")
	} else if err != nil {
		return nil, verr.ErrStorage.Wrap(err, "read fragment")
	}

	data, err := decodeRecord(key, kindFragment, buff)
	if err != nil {
		return nil, err
	}
	if hash.Of(data) != ref.Addr {
		return nil, verr.ErrCorruptRecord.New(key, "address mismatch")
	}

	s.cache.Add(ref.Addr, data)
	return data, nil
}

// ReadFragments reads all of |refs| in parallel, returning their data in the same order.
func (s *Store) ReadFragments(ctx context.Context, refs []FragmentRef) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "snapshots.ReadFragments", trace.WithAttributes(attribute.Int("fragments", len(refs))))
	defer span.End()

	out := make([][]byte, len(refs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		eg.Go(func() error {
			data, err := s.ReadFragment(ctx, ref)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
