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

// Package blobstore persists named blobs for the table engine. Every blob
// carries an opaque version string chosen by the backend; CheckAndPut only
// replaces a blob whose current version matches the expected one, and an
// empty expected version means the key must not exist yet. Snapshot records
// and row fragments use that to be write-once, and manifests use it for
// compare-and-swap updates.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Blobstore is an interface for storing and retrieving blobs of data by key
type Blobstore interface {
	// Path returns this blobstore's path.
	Path() string

	// Exists returns true if a blob keyed by |key| exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns a reader for the portion of the blob keyed by |key| described by |br|, along with the blob's
	// version. A missing key is reported with a NotFound error.
	Get(ctx context.Context, key string, br BlobRange) (io.ReadCloser, string, error)

	// Put unconditionally sets the blob keyed by |key| and returns its new version.
	Put(ctx context.Context, key string, totalSize int64, reader io.Reader) (string, error)

	// CheckAndPut sets the blob keyed by |key| only if its current version is |expectedVersion|. An empty
	// |expectedVersion| requires that the key does not exist. A mismatch is reported with a CheckAndPutError.
	CheckAndPut(ctx context.Context, expectedVersion, key string, totalSize int64, reader io.Reader) (string, error)
}

// BlobRange represents a section of a blob. A zero length means "to the end of the blob" and a negative offset
// is measured from the end of the blob.
type BlobRange struct {
	offset int64
	length int64
}

// AllRange is a BlobRange instance covering all the bytes of a blob
var AllRange = BlobRange{}

// NewBlobRange creates a BlobRange from an offset and a length.
func NewBlobRange(offset, length int64) BlobRange {
	if length < 0 {
		panic("BlobRanges cannot have negative lengths")
	}
	return BlobRange{offset, length}
}

func (br BlobRange) isAllRange() bool {
	return br.offset == 0 && br.length == 0
}

// positiveRange resolves a negative offset against a blob of |size| bytes and clamps the range to the blob.
func (br BlobRange) positiveRange(size int64) BlobRange {
	offset := br.offset
	if offset < 0 {
		offset = size + offset
		if offset < 0 {
			offset = 0
		}
	}
	if offset > size {
		offset = size
	}

	length := br.length
	if length == 0 || offset+length > size {
		length = size - offset
	}

	return BlobRange{offset, length}
}

func (br BlobRange) asHTTPRangeHeader() string {
	if br.offset < 0 {
		return fmt.Sprintf("bytes=%d", br.offset)
	}
	if br.length == 0 {
		return fmt.Sprintf("bytes=%d-", br.offset)
	}
	return fmt.Sprintf("bytes=%d-%d", br.offset, br.offset+br.length-1)
}

// GetBytes is a utility method that calls bs.Get and reads all of the data into a slice.
func GetBytes(ctx context.Context, bs Blobstore, key string, br BlobRange) ([]byte, string, error) {
	rc, ver, err := bs.Get(ctx, key, br)
	if err != nil || rc == nil {
		return nil, ver, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}

	return data, ver, nil
}

// PutBytes is a utility method that calls bs.Put with an in-memory slice.
func PutBytes(ctx context.Context, bs Blobstore, key string, data []byte) (string, error) {
	return bs.Put(ctx, key, int64(len(data)), bytes.NewReader(data))
}

// CheckAndPutBytes is a utility method that calls bs.CheckAndPut with an in-memory slice.
func CheckAndPutBytes(ctx context.Context, bs Blobstore, expectedVersion, key string, data []byte) (string, error) {
	return bs.CheckAndPut(ctx, expectedVersion, key, int64(len(data)), bytes.NewReader(data))
}
