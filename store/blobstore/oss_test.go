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
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOSSBucket struct {
	mu    sync.Mutex
	data  map[string][]byte
	etags map[string]string
	puts  int
}

func newFakeOSSBucket() *fakeOSSBucket {
	return &fakeOSSBucket{data: map[string][]byte{}, etags: map[string]string{}}
}

func (b *fakeOSSBucket) IsObjectExist(key string, _ ...oss.Option) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok, nil
}

func (b *fakeOSSBucket) GetObjectMeta(key string, _ ...oss.Option) (http.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, oss.ServiceError{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
	}
	h := http.Header{}
	h.Set(oss.HTTPHeaderEtag, b.etags[key])
	h.Set(oss.HTTPHeaderContentLength, strconv.Itoa(len(data)))
	return h, nil
}

func (b *fakeOSSBucket) GetObject(key string, _ ...oss.Option) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, oss.ServiceError{StatusCode: http.StatusNotFound, Code: "NoSuchKey"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// PutObject treats more than one option as ForbidOverWrite plus the response header capture.
func (b *fakeOSSBucket) PutObject(key string, reader io.Reader, options ...oss.Option) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok && len(options) > 1 {
		return oss.ServiceError{StatusCode: http.StatusConflict, Code: "FileAlreadyExists"}
	}
	b.puts++
	b.data[key] = data
	b.etags[key] = "etag-" + strconv.Itoa(b.puts)
	return nil
}

func Test_normalizePrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"no_leading_slash", "root", "root"},
		{"with_leading_slash", "/root", "root"},
		{"with_multi_leading_slash", "//root", "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.want, normalizePrefix(tt.prefix), "normalizePrefix(%v)", tt.prefix)
		})
	}
}

func TestOSSBlobstoreGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeOSSBucket()
	bs := newOSSBlobstore(fake, "bucket", "/db")
	assert.Equal(t, "bucket/db", bs.Path())

	_, _, err := bs.Get(ctx, "missing", AllRange)
	assert.True(t, IsNotFoundError(err))

	require.NoError(t, fake.PutObject("db/k", strings.NewReader("hello world")))
	data, ver, err := GetBytes(ctx, bs, "k", AllRange)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "etag-1", ver)

	ok, err := bs.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOSSBlobstoreCheckAndPut(t *testing.T) {
	ctx := context.Background()
	fake := newFakeOSSBucket()
	bs := newOSSBlobstore(fake, "bucket", "db")

	_, err := CheckAndPutBytes(ctx, bs, "", "k", []byte("v1"))
	require.NoError(t, err)

	_, err = CheckAndPutBytes(ctx, bs, "", "k", []byte("v2"))
	assert.True(t, IsCheckAndPutError(err))

	_, err = CheckAndPutBytes(ctx, bs, "wrong", "k", []byte("v2"))
	assert.True(t, IsCheckAndPutError(err))

	_, err = CheckAndPutBytes(ctx, bs, "etag-1", "k", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), fake.data["db/k"])

	_, err = CheckAndPutBytes(ctx, bs, "etag-1", "other", []byte("v1"))
	assert.True(t, IsCheckAndPutError(err))
}
