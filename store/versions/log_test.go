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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/hash"
	"github.com/dolthub/verdb/store/manifest"
	"github.com/dolthub/verdb/store/verr"
)

func newTestManifest() manifest.Manifest {
	return manifest.NewBlobstoreManifest(blobstore.NewInMemoryBlobstore("mem"))
}

func snapshotAddr(s string) hash.Hash {
	return hash.Of([]byte(s))
}

type failingManifest struct {
	manifest.Manifest
	failUpdates bool
}

func (fm *failingManifest) Update(ctx context.Context, name string, lastLock hash.Hash, newContents manifest.Contents) (manifest.Contents, error) {
	if fm.failUpdates {
		return manifest.Contents{}, errors.New("disk on fire")
	}
	return fm.Manifest.Update(ctx, name, lastLock, newContents)
}

func TestEmptyLog(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())

	vs, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, vs)

	_, err = l.Latest(ctx)
	assert.True(t, verr.ErrEmptyLog.Is(err))

	_, err = l.Get(ctx, 1)
	assert.True(t, verr.ErrVersionNotFound.Is(err))

	lineages, err := l.Lineages(ctx)
	require.NoError(t, err)
	assert.Empty(t, lineages)
}

func TestAppendIsGaplessAndOrdered(t *testing.T) {
	ctx := context.Background()

	// a clock that runs backwards must not produce decreasing timestamps
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ticks int
	clock := func() time.Time {
		ticks++
		return base.Add(-time.Duration(ticks) * time.Minute)
	}
	l := New("quotes", newTestManifest(), WithClock(clock))

	for i := 1; i <= 3; i++ {
		v, err := l.Append(ctx, Entry{Snapshot: snapshotAddr(string(rune('a' + i))), Op: OpAppend})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), v.Version)
	}

	vs, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 3)
	for i, v := range vs {
		assert.Equal(t, uint64(i+1), v.Version)
		assert.NotEmpty(t, v.Lineage)
		if i > 0 {
			assert.False(t, v.Timestamp.Before(vs[i-1].Timestamp))
		}
	}

	latest, err := l.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Version)

	v2, err := l.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, vs[1], v2)

	_, err = l.Get(ctx, 4)
	assert.True(t, verr.ErrVersionNotFound.Is(err))
	_, err = l.Get(ctx, 0)
	assert.True(t, verr.ErrVersionNotFound.Is(err))
}

func TestMetadataIsPersisted(t *testing.T) {
	ctx := context.Background()
	m := newTestManifest()
	l := New("quotes", m)

	_, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpCreate, Metadata: map[string]string{"author": "ana"}})
	require.NoError(t, err)

	reopened := New("quotes", m)
	v, err := reopened.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ana", v.Metadata["author"])
	assert.Equal(t, OpCreate, v.Op)
	assert.Equal(t, snapshotAddr("a"), v.Snapshot)
}

func TestFailedBuildLeavesLogUnchanged(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())
	_, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpCreate})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = l.AppendFunc(ctx, func(ctx context.Context, p Pending) (Entry, error) {
		assert.Equal(t, uint64(2), p.Version)
		assert.Equal(t, "quotes", p.Table)
		if assert.NotNil(t, p.Previous) {
			assert.Equal(t, uint64(1), p.Previous.Version)
		}
		return Entry{}, boom
	})
	assert.Equal(t, boom, err)

	vs, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, vs, 1)
}

func TestCancelledAppendLeavesNoEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New("quotes", newTestManifest())

	_, err := l.AppendFunc(ctx, func(ctx context.Context, p Pending) (Entry, error) {
		cancel()
		return Entry{Snapshot: snapshotAddr("a"), Op: OpCreate}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	vs, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestStorageFailureIsReported(t *testing.T) {
	ctx := context.Background()
	fm := &failingManifest{Manifest: newTestManifest()}
	l := New("quotes", fm)

	_, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpCreate})
	require.NoError(t, err)

	fm.failUpdates = true
	_, err = l.Append(ctx, Entry{Snapshot: snapshotAddr("b"), Op: OpAppend})
	assert.True(t, verr.ErrStorage.Is(err))
	assert.True(t, verr.IsRetryable(err))

	fm.failUpdates = false
	vs, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, vs, 1)

	v, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("b"), Op: OpAppend})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Version)
}

func TestConcurrentAppendsOnOneLog(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())

	const writers = 20
	var wg sync.WaitGroup
	results := make(chan uint64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("x"), Op: OpAppend})
			if assert.NoError(t, err) {
				results <- v.Version
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool)
	for v := range results {
		assert.False(t, seen[v], "version %d allocated twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, writers)

	vs, err := l.List(ctx)
	require.NoError(t, err)
	for i, v := range vs {
		assert.Equal(t, uint64(i+1), v.Version)
	}
}

func TestConflictingWriterIsDetected(t *testing.T) {
	ctx := context.Background()
	m := newTestManifest()
	ours := New("quotes", m)
	theirs := New("quotes", m)

	_, err := ours.Append(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpCreate})
	require.NoError(t, err)

	_, err = ours.AppendFunc(ctx, func(ctx context.Context, p Pending) (Entry, error) {
		_, err := theirs.Append(ctx, Entry{Snapshot: snapshotAddr("theirs"), Op: OpAppend})
		require.NoError(t, err)
		return Entry{Snapshot: snapshotAddr("ours"), Op: OpAppend}, nil
	})
	assert.True(t, verr.ErrConcurrentWrite.Is(err))

	vs, err := ours.List(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, snapshotAddr("theirs"), vs[1].Snapshot)
}

func TestStartLineage(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("old"), Op: OpAppend})
		require.NoError(t, err)
	}
	require.NoError(t, l.Tag(ctx, "release", 2))

	oldVersions, err := l.List(ctx)
	require.NoError(t, err)
	oldLineage := oldVersions[0].Lineage

	v, err := l.StartLineageFunc(ctx, func(ctx context.Context, p Pending) (Entry, error) {
		assert.Nil(t, p.Previous)
		assert.Equal(t, uint64(1), p.Version)
		return Entry{Snapshot: snapshotAddr("new"), Op: OpOverwrite}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Version)
	assert.NotEqual(t, oldLineage, v.Lineage)

	vs, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, OpOverwrite, vs[0].Op)

	tags, err := l.Tags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)

	lineages, err := l.Lineages(ctx)
	require.NoError(t, err)
	require.Len(t, lineages, 2)
	assert.Equal(t, oldLineage, lineages[0].ID)
	assert.False(t, lineages[0].Current)
	assert.Equal(t, uint64(3), lineages[0].Versions)
	assert.True(t, lineages[1].Current)

	archived, err := l.LineageVersions(ctx, oldLineage)
	require.NoError(t, err)
	assert.Equal(t, oldVersions, archived)

	_, err = l.LineageVersions(ctx, "nope")
	assert.True(t, verr.ErrLineageNotFound.Is(err))
}

func TestStartLineageOnEmptyLog(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())

	v, err := l.StartLineage(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpCreate})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Version)

	lineages, err := l.Lineages(ctx)
	require.NoError(t, err)
	assert.Len(t, lineages, 1)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	l := New("quotes", newTestManifest())
	for i := 0; i < 2; i++ {
		_, err := l.Append(ctx, Entry{Snapshot: snapshotAddr("a"), Op: OpAppend})
		require.NoError(t, err)
	}

	require.NoError(t, l.Tag(ctx, "b", 2))
	require.NoError(t, l.Tag(ctx, "a", 1))

	err := l.Tag(ctx, "a", 2)
	assert.True(t, verr.ErrAlreadyExists.Is(err))

	err = l.Tag(ctx, "c", 9)
	assert.True(t, verr.ErrVersionNotFound.Is(err))

	tags, err := l.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Tag{{"a", 1}, {"b", 2}}, tags)

	v, err := l.TagVersion(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Version)

	require.NoError(t, l.DeleteTag(ctx, "a"))
	_, err = l.TagVersion(ctx, "a")
	assert.True(t, verr.ErrTagNotFound.Is(err))
	assert.True(t, verr.ErrTagNotFound.Is(l.DeleteTag(ctx, "a")))
}
