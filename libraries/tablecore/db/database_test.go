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

package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/verdb/libraries/tablecore/row"
	"github.com/dolthub/verdb/libraries/tablecore/schema"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
	"github.com/dolthub/verdb/store/verr"
	"github.com/dolthub/verdb/store/versions"
)

var quoteSchema = schema.MustNew(
	schema.Column{Name: "id", Type: schema.Int},
	schema.Column{Name: "quote", Type: schema.String},
)

func newTestDB(t *testing.T) *Database {
	bs := blobstore.NewInMemoryBlobstore("mem")
	db, err := New("test", bs, manifest.NewBlobstoreManifest(bs), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return db
}

func batch(t *testing.T, rows ...row.Row) row.Batch {
	b, err := row.NewBatch(quoteSchema, rows...)
	require.NoError(t, err)
	return b
}

func TestCreateAndOpen(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tbl, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{1, "a"}, row.Row{2, "b"}, row.Row{3, "c"}), CreateOptions{})
	require.NoError(t, err)

	v, err := tbl.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	vs, err := tbl.ListVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, vs, 1)

	opened, err := db.OpenTable(ctx, "quotes")
	require.NoError(t, err)
	n, err := opened.CountRows(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"quotes"}, names)

	created, err := db.TableCreated(ctx, "quotes")
	require.NoError(t, err)
	assert.Equal(t, vs[0].Timestamp.UTC(), created.UTC())
}

func TestCreateModes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tbl, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{1, "a"}), CreateOptions{})
	require.NoError(t, err)
	_, err = tbl.Add(ctx, batch(t, row.Row{2, "b"}))
	require.NoError(t, err)

	_, err = db.CreateTable(ctx, "quotes", batch(t, row.Row{9, "z"}), CreateOptions{Mode: Create})
	assert.True(t, verr.ErrAlreadyExists.Is(err))

	existing, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{9, "z"}), CreateOptions{Mode: ExistOk})
	require.NoError(t, err)
	v, err := existing.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	other := schema.MustNew(schema.Column{Name: "x", Type: schema.Bool})
	b, err := row.NewBatch(other, row.Row{true})
	require.NoError(t, err)
	_, err = db.CreateTable(ctx, "quotes", b, CreateOptions{Mode: ExistOk})
	assert.True(t, verr.ErrSchemaMismatch.Is(err))

	over, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{9, "z"}), CreateOptions{Mode: Overwrite})
	require.NoError(t, err)
	vs, err := over.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, uint64(1), vs[0].Version)
	assert.Equal(t, versions.OpOverwrite, vs[0].Op)

	// the retired lineage stays readable
	lineages, err := over.Lineages(ctx)
	require.NoError(t, err)
	require.Len(t, lineages, 2)
	old, err := over.LineageVersions(ctx, lineages[0].ID)
	require.NoError(t, err)
	assert.Len(t, old, 2)

	// the first handle follows the new lineage too
	v, err = tbl.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestOverwriteMissingTableCreates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tbl, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{1, "a"}), CreateOptions{Mode: Overwrite})
	require.NoError(t, err)
	vs, err := tbl.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, versions.OpCreate, vs[0].Op)
}

func TestFailedCreateLeavesNothing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateTable(ctx, "quotes", row.Batch{}, CreateOptions{})
	assert.True(t, verr.ErrSchemaMismatch.Is(err))

	_, err = db.OpenTable(ctx, "quotes")
	assert.True(t, verr.ErrTableNotFound.Is(err))
}

func TestOpenMissingTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.OpenTable(ctx, "nope")
	assert.True(t, verr.ErrTableNotFound.Is(err))
	assert.True(t, verr.IsNotFound(err))
}

func TestInvalidTableNames(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for _, name := range []string{"", "a/b", "..", ".hidden", "a@b", "with space", string(make([]byte, MaxTableNameLen+1))} {
		_, err := db.CreateTable(ctx, name, batch(t, row.Row{1, "a"}), CreateOptions{})
		assert.True(t, verr.ErrInvalidTableName.Is(err), "name %q", name)
	}

	for _, name := range []string{"quotes", "Quotes_2024", "a.b-c", "_x"} {
		assert.NoError(t, ValidateTableName(name), "name %q", name)
	}
}

func TestDropTable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tbl, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{1, "a"}), CreateOptions{})
	require.NoError(t, err)
	_, err = tbl.Add(ctx, batch(t, row.Row{2, "b"}))
	require.NoError(t, err)

	require.NoError(t, db.DropTable(ctx, "quotes"))
	assert.True(t, verr.ErrTableNotFound.Is(db.DropTable(ctx, "quotes")))

	names, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	// recreating starts from version 1
	tbl, err = db.CreateTable(ctx, "quotes", batch(t, row.Row{3, "c"}), CreateOptions{})
	require.NoError(t, err)
	vs, err := tbl.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	n, err := tbl.CountRows(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestIndependentTables(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	names := []string{"a", "b", "c", "d"}
	batches := make([]row.Batch, len(names))
	for i := range names {
		batches[i] = batch(t, row.Row{i, names[i]})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			tbl, err := db.CreateTable(ctx, name, batches[i], CreateOptions{})
			if err != nil {
				errs[i] = err
				return
			}
			for j := 0; j < 3; j++ {
				if _, err := tbl.Add(ctx, batches[i]); err != nil {
					errs[i] = err
					return
				}
			}
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, name := range names {
		tbl, err := db.OpenTable(ctx, name)
		require.NoError(t, err)
		v, err := tbl.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), v)
	}
}

type closeRecorder struct {
	closed *[]string
	name   string
	err    error
}

func (c closeRecorder) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	var closed []string
	db.AddCloser(closeRecorder{&closed, "first", nil})
	db.AddCloser(closeRecorder{&closed, "second", errors.New("boom")})

	assert.EqualError(t, db.Close(), "boom")
	assert.Equal(t, []string{"second", "first"}, closed)
	assert.NoError(t, db.Close())

	_, err := db.OpenTable(ctx, "quotes")
	assert.True(t, verr.ErrDatabaseClosed.Is(err))
	_, err = db.TableNames(ctx)
	assert.True(t, verr.ErrDatabaseClosed.Is(err))
}

func TestFixedClock(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewInMemoryBlobstore("mem")
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	db, err := New("test", bs, manifest.NewBlobstoreManifest(bs), Options{Clock: func() time.Time { return at }})
	require.NoError(t, err)

	tbl, err := db.CreateTable(ctx, "quotes", batch(t, row.Row{1, "a"}), CreateOptions{Metadata: map[string]string{"by": "test"}})
	require.NoError(t, err)
	vs, err := tbl.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.True(t, at.Equal(vs[0].Timestamp))
	assert.Equal(t, "test", vs[0].Metadata["by"])
}

func TestCreateModeFromStr(t *testing.T) {
	tests := []struct {
		in   string
		mode CreateMode
		ok   bool
	}{
		{"", Create, true},
		{"create", Create, true},
		{"Overwrite", Overwrite, true},
		{"exist_ok", ExistOk, true},
		{"exist-ok", ExistOk, true},
		{"merge", Create, false},
	}

	for _, test := range tests {
		mode, ok := CreateModeFromStr(test.in)
		assert.Equal(t, test.ok, ok, test.in)
		assert.Equal(t, test.mode, mode, test.in)
		if ok && test.in != "" {
			roundTrip, _ := CreateModeFromStr(mode.String())
			assert.Equal(t, mode, roundTrip)
		}
	}
}
