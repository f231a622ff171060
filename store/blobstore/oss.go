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
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// ossBucket is the subset of *oss.Bucket used by OSSBlobstore.
type ossBucket interface {
	IsObjectExist(objectKey string, options ...oss.Option) (bool, error)
	GetObjectMeta(objectKey string, options ...oss.Option) (http.Header, error)
	GetObject(objectKey string, options ...oss.Option) (io.ReadCloser, error)
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

// OSSBlobstore provides an Aliyun OSS implementation of the Blobstore interface. ETags serve as blob versions.
type OSSBlobstore struct {
	bucket     ossBucket
	bucketName string
	prefix     string
}

var _ Blobstore = &OSSBlobstore{}

// NewOSSBlobstore creates a new instance of a OSSBlobstore
func NewOSSBlobstore(ossClient *oss.Client, bucketName, prefix string) (*OSSBlobstore, error) {
	bucket, err := ossClient.Bucket(bucketName)
	if err != nil {
		return nil, err
	}
	return newOSSBlobstore(bucket, bucketName, prefix), nil
}

func newOSSBlobstore(bucket ossBucket, bucketName, prefix string) *OSSBlobstore {
	return &OSSBlobstore{
		bucket:     bucket,
		bucketName: bucketName,
		prefix:     normalizePrefix(prefix),
	}
}

func (ob *OSSBlobstore) Path() string {
	return path.Join(ob.bucketName, ob.prefix)
}

func (ob *OSSBlobstore) Exists(_ context.Context, key string) (bool, error) {
	return ob.bucket.IsObjectExist(ob.absKey(key))
}

func (ob *OSSBlobstore) Get(ctx context.Context, key string, br BlobRange) (io.ReadCloser, string, error) {
	absKey := ob.absKey(key)
	meta, err := ob.bucket.GetObjectMeta(absKey)
	if isNotFoundErr(err) {
		return nil, "", NotFound{"oss://" + path.Join(ob.bucketName, absKey)}
	} else if err != nil {
		return nil, "", err
	}
	ver := meta.Get(oss.HTTPHeaderEtag)

	if br.isAllRange() {
		reader, err := ob.bucket.GetObject(absKey)
		if err != nil {
			return nil, "", err
		}
		return reader, ver, nil
	}

	size, err := strconv.ParseInt(meta.Get(oss.HTTPHeaderContentLength), 10, 64)
	if err != nil {
		return nil, "", err
	}
	posBr := br.positiveRange(size)
	reader, err := ob.bucket.GetObject(absKey, oss.Range(posBr.offset, posBr.offset+posBr.length-1))
	if err != nil {
		return nil, "", err
	}
	return reader, ver, nil
}

func (ob *OSSBlobstore) Put(ctx context.Context, key string, totalSize int64, reader io.Reader) (string, error) {
	var meta http.Header
	if err := ob.bucket.PutObject(ob.absKey(key), reader, oss.GetResponseHeader(&meta)); err != nil {
		return "", err
	}
	return meta.Get(oss.HTTPHeaderEtag), nil
}

// CheckAndPut uses ForbidOverWrite for creates. OSS has no conditional overwrite, so replacing an existing blob
// compares the current ETag first and is not atomic across writers.
func (ob *OSSBlobstore) CheckAndPut(ctx context.Context, expectedVersion, key string, totalSize int64, reader io.Reader) (string, error) {
	absKey := ob.absKey(key)

	var options []oss.Option
	if expectedVersion == "" {
		options = append(options, oss.ForbidOverWrite(true))
	} else {
		meta, err := ob.bucket.GetObjectMeta(absKey)
		if isNotFoundErr(err) {
			return "", CheckAndPutError{key, expectedVersion, ""}
		} else if err != nil {
			return "", err
		}
		if actual := meta.Get(oss.HTTPHeaderEtag); actual != expectedVersion {
			return "", CheckAndPutError{key, expectedVersion, actual}
		}
	}

	var meta http.Header
	options = append(options, oss.GetResponseHeader(&meta))
	if err := ob.bucket.PutObject(absKey, reader, options...); err != nil {
		if isAlreadyExistsErr(err) {
			return "", CheckAndPutError{key, expectedVersion, ""}
		}
		return "", err
	}
	return meta.Get(oss.HTTPHeaderEtag), nil
}

func (ob *OSSBlobstore) absKey(key string) string {
	return path.Join(ob.prefix, key)
}

func normalizePrefix(prefix string) string {
	for len(prefix) > 0 && prefix[0] == '/' {
		prefix = prefix[1:]
	}
	return prefix
}

func isNotFoundErr(err error) bool {
	switch err := err.(type) {
	case oss.ServiceError:
		return err.StatusCode == http.StatusNotFound
	}
	return false
}

func isAlreadyExistsErr(err error) bool {
	switch err := err.(type) {
	case oss.ServiceError:
		return err.StatusCode == http.StatusConflict
	}
	return false
}
