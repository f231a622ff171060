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
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	mu    sync.Mutex
	data  map[string][]byte
	etags map[string]string
	puts  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{data: map[string][]byte{}, etags: map[string]string{}}
}

func (m *fakeS3) HeadObject(ctx context.Context, input *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := aws.ToString(input.Key)
	data, ok := m.data[key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(m.etags[key]), ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *fakeS3) GetObject(ctx context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := aws.ToString(input.Key)
	data, ok := m.data[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	if input.Range != nil {
		start, end, err := parseRange(*input.Range, int64(len(data)))
		if err != nil {
			return nil, err
		}
		data = data[start:end]
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
		ETag: aws.String(m.etags[key]),
	}, nil
}

func (m *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := aws.ToString(input.Key)
	current, exists := m.etags[key]
	if input.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	if input.IfMatch != nil {
		if !exists {
			return nil, &types.NoSuchKey{}
		}
		if *input.IfMatch != current {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
		}
	}

	m.puts++
	etag := fmt.Sprintf("%q", strconv.Itoa(m.puts))
	m.data[key] = data
	m.etags[key] = etag
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

// parseRange handles the three forms produced by BlobRange.asHTTPRangeHeader.
func parseRange(hdr string, size int64) (int64, int64, error) {
	rng := strings.TrimPrefix(hdr, "bytes=")
	if strings.HasPrefix(rng, "-") {
		n, err := strconv.ParseInt(rng[1:], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if n > size {
			n = size
		}
		return size - n, size, nil
	}

	parts := strings.SplitN(rng, "-", 2)
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end := size
	if len(parts) == 2 && parts[1] != "" {
		last, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if last+1 < end {
			end = last + 1
		}
	}
	if start > end {
		start = end
	}
	return start, end, nil
}
