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
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const (
	precondFailCode = http.StatusPreconditionFailed
)

// GCSBlobstore provides a GCS implementation of the Blobstore interface. Object generations serve as blob versions.
type GCSBlobstore struct {
	bucket     *storage.BucketHandle
	bucketName string
	prefix     string
}

var _ Blobstore = &GCSBlobstore{}

// NewGCSBlobstore creates a new instance of a GCSBlobstore
func NewGCSBlobstore(gcs *storage.Client, bucketName, prefix string) *GCSBlobstore {
	prefix = normalizePrefix(prefix)
	return &GCSBlobstore{bucket: gcs.Bucket(bucketName), bucketName: bucketName, prefix: prefix}
}

func (bs *GCSBlobstore) Path() string {
	return path.Join(bs.bucketName, bs.prefix)
}

// Exists returns true if a blob exists for the given key, and false if it does not.
func (bs *GCSBlobstore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := bs.bucket.Object(path.Join(bs.prefix, key)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Get retrieves an io.reader for the portion of a blob specified by br along with
// its version
func (bs *GCSBlobstore) Get(ctx context.Context, key string, br BlobRange) (io.ReadCloser, string, error) {
	oh := bs.bucket.Object(path.Join(bs.prefix, key))

	var reader *storage.Reader
	var err error
	if br.isAllRange() {
		reader, err = oh.NewReader(ctx)
	} else {
		offset, length := br.offset, br.length
		if length == 0 || offset < 0 {
			length = -1
		}
		reader, err = oh.NewRangeReader(ctx, offset, length)
	}

	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, "", NotFound{"gs://" + path.Join(bs.bucketName, bs.prefix, key)}
	} else if err != nil {
		return nil, "", err
	}

	return reader, fmtGeneration(reader.Attrs.Generation), nil
}

// Put sets the blob and the version for a key
func (bs *GCSBlobstore) Put(ctx context.Context, key string, totalSize int64, reader io.Reader) (string, error) {
	return writeObj(ctx, bs.bucket.Object(path.Join(bs.prefix, key)), reader)
}

// CheckAndPut will check the current version of a blob against an expectedVersion, and if the
// versions match it will update the data and version associated with the key
func (bs *GCSBlobstore) CheckAndPut(ctx context.Context, expectedVersion, key string, totalSize int64, reader io.Reader) (string, error) {
	oh := bs.bucket.Object(path.Join(bs.prefix, key))

	var conditionalHandle *storage.ObjectHandle
	if expectedVersion != "" {
		expectedGen, err := strconv.ParseInt(expectedVersion, 16, 64)
		if err != nil {
			return "", CheckAndPutError{key, expectedVersion, ""}
		}
		conditionalHandle = oh.If(storage.Conditions{GenerationMatch: expectedGen})
	} else {
		conditionalHandle = oh.If(storage.Conditions{DoesNotExist: true})
	}

	ver, err := writeObj(ctx, conditionalHandle, reader)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == precondFailCode {
			actual := ""
			if attrs, attrErr := oh.Attrs(ctx); attrErr == nil {
				actual = fmtGeneration(attrs.Generation)
			}
			return "", CheckAndPutError{key, expectedVersion, actual}
		}
		return "", err
	}

	return ver, nil
}

func writeObj(ctx context.Context, oh *storage.ObjectHandle, reader io.Reader) (string, error) {
	writer := oh.NewWriter(ctx)

	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	return fmtGeneration(writer.Attrs().Generation), nil
}

func fmtGeneration(gen int64) string {
	return strconv.FormatInt(gen, 16)
}
