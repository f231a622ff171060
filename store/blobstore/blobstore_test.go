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

package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blobstoreTest struct {
	name string
	bs   Blobstore
}

func newBlobstoreTests(t *testing.T) []blobstoreTest {
	local, err := NewLocalBlobstore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	return []blobstoreTest{
		{"inmem", NewInMemoryBlobstore("")},
		{"local", local},
		{"s3", NewS3Blobstore(newFakeS3(), "bucket", "prefix")},
	}
}

func TestPutAndGetBack(t *testing.T) {
	ctx := context.Background()
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ver, err := PutBytes(ctx, bt.bs, "dir/key", []byte("some data"))
			require.NoError(t, err)
			assert.NotEmpty(t, ver)

			data, readVer, err := GetBytes(ctx, bt.bs, "dir/key", AllRange)
			require.NoError(t, err)
			assert.Equal(t, "some data", string(data))
			assert.Equal(t, ver, readVer)

			ok, err := bt.bs.Exists(ctx, "dir/key")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = bt.bs.Exists(ctx, "dir/other")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			_, _, err := bt.bs.Get(ctx, "missing", AllRange)
			assert.True(t, IsNotFoundError(err), "unexpected error: %v", err)
		})
	}
}

func TestGetRange(t *testing.T) {
	ctx := context.Background()
	data := []byte("0123456789")

	tests := []struct {
		br       BlobRange
		expected string
	}{
		{NewBlobRange(0, 4), "0123"},
		{NewBlobRange(4, 0), "456789"},
		{NewBlobRange(8, 10), "89"},
		{NewBlobRange(-3, 0), "789"},
	}

	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			_, err := PutBytes(ctx, bt.bs, "range", data)
			require.NoError(t, err)

			for _, test := range tests {
				actual, _, err := GetBytes(ctx, bt.bs, "range", test.br)
				require.NoError(t, err)
				assert.Equal(t, test.expected, string(actual), "range %+v", test.br)
			}
		})
	}
}

func TestCheckAndPut(t *testing.T) {
	ctx := context.Background()
	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			ver, err := CheckAndPutBytes(ctx, bt.bs, "", "cas", []byte("v1"))
			require.NoError(t, err)

			_, err = CheckAndPutBytes(ctx, bt.bs, "", "cas", []byte("v1 again"))
			assert.True(t, IsCheckAndPutError(err), "create-only put should fail once the key exists")

			_, err = CheckAndPutBytes(ctx, bt.bs, "not-the-version", "cas", []byte("v2"))
			require.Error(t, err)
			var cpe CheckAndPutError
			require.ErrorAs(t, err, &cpe)
			assert.Equal(t, ver, cpe.ActualVersion)

			newVer, err := CheckAndPutBytes(ctx, bt.bs, ver, "cas", []byte("v2"))
			require.NoError(t, err)
			assert.NotEqual(t, ver, newVer)

			data, readVer, err := GetBytes(ctx, bt.bs, "cas", AllRange)
			require.NoError(t, err)
			assert.Equal(t, "v2", string(data))
			assert.Equal(t, newVer, readVer)
		})
	}
}

func TestConcurrentCheckAndPut(t *testing.T) {
	ctx := context.Background()
	const writers = 16

	for _, bt := range newBlobstoreTests(t) {
		t.Run(bt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			successes := 0

			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := CheckAndPutBytes(ctx, bt.bs, "", "race", []byte(fmt.Sprintf("writer %d", i)))
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					} else {
						assert.True(t, IsCheckAndPutError(err), "unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
		})
	}
}

func TestLocalBlobstoreRejectsEscapingKeys(t *testing.T) {
	bs, err := NewLocalBlobstore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../up", "/abs", "a/../../b", lockFileName} {
		_, err := bs.Put(context.Background(), key, 1, bytes.NewReader([]byte("x")))
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalBlobstoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	bs, err := NewLocalBlobstore(dir)
	require.NoError(t, err)
	ver, err := PutBytes(ctx, bs, "k", []byte("persisted"))
	require.NoError(t, err)

	reopened, err := NewLocalBlobstore(dir)
	require.NoError(t, err)
	data, readVer, err := GetBytes(ctx, reopened, "k", AllRange)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
	assert.Equal(t, ver, readVer)
}
