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
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3svc is the subset of the S3 client used by S3Blobstore.
type s3svc interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Blobstore provides an S3 implementation of the Blobstore interface. Object ETags serve as blob versions and
// CheckAndPut relies on S3 conditional writes.
type S3Blobstore struct {
	client s3svc
	bucket string
	prefix string
}

var _ Blobstore = &S3Blobstore{}

// NewS3Blobstore creates a new instance of an S3Blobstore storing objects under |prefix| in |bucket|.
func NewS3Blobstore(client s3svc, bucket, prefix string) *S3Blobstore {
	return &S3Blobstore{client: client, bucket: bucket, prefix: prefix}
}

func (bs *S3Blobstore) Path() string {
	return path.Join(bs.bucket, bs.prefix)
}

func (bs *S3Blobstore) absKey(key string) string {
	return path.Join(bs.prefix, key)
}

// Exists returns true if a blob exists for the given key, and false if it does not.
func (bs *S3Blobstore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := bs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bs.bucket),
		Key:    aws.String(bs.absKey(key)),
	})
	if isS3NotFound(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves an io.reader for the portion of a blob specified by br along with its version
func (bs *S3Blobstore) Get(ctx context.Context, key string, br BlobRange) (io.ReadCloser, string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bs.bucket),
		Key:    aws.String(bs.absKey(key)),
	}
	if !br.isAllRange() {
		input.Range = aws.String(br.asHTTPRangeHeader())
	}

	result, err := bs.client.GetObject(ctx, input)
	if isS3NotFound(err) {
		return nil, "", NotFound{key}
	} else if err != nil {
		return nil, "", err
	}

	return result.Body, aws.ToString(result.ETag), nil
}

// Put sets the blob and the version for a key
func (bs *S3Blobstore) Put(ctx context.Context, key string, totalSize int64, reader io.Reader) (string, error) {
	return bs.put(ctx, key, totalSize, reader, func(*s3.PutObjectInput) {})
}

// CheckAndPut will check the current version of a blob against an expectedVersion, and if the
// versions match it will update the data and version associated with the key
func (bs *S3Blobstore) CheckAndPut(ctx context.Context, expectedVersion, key string, totalSize int64, reader io.Reader) (string, error) {
	ver, err := bs.put(ctx, key, totalSize, reader, func(input *s3.PutObjectInput) {
		if expectedVersion == "" {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(expectedVersion)
		}
	})

	if isS3PreconditionFailed(err) || (expectedVersion != "" && isS3NotFound(err)) {
		actual := ""
		if head, headErr := bs.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bs.bucket),
			Key:    aws.String(bs.absKey(key)),
		}); headErr == nil {
			actual = aws.ToString(head.ETag)
		}
		return "", CheckAndPutError{key, expectedVersion, actual}
	}

	return ver, err
}

func (bs *S3Blobstore) put(ctx context.Context, key string, totalSize int64, reader io.Reader, opt func(*s3.PutObjectInput)) (string, error) {
	body, ok := reader.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
		totalSize = int64(len(data))
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bs.bucket),
		Key:           aws.String(bs.absKey(key)),
		Body:          body,
		ContentLength: aws.Int64(totalSize),
	}
	opt(input)

	result, err := bs.client.PutObject(ctx, input)
	if err != nil {
		return "", err
	}

	return aws.ToString(result.ETag), nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if err != nil && errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
