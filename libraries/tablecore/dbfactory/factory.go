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

package dbfactory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dolthub/verdb/libraries/tablecore/db"
)

const (
	// AWSScheme stores snapshots in S3 and version logs in DynamoDB: aws://[ddb-table:bucket]/database
	AWSScheme = "aws"

	// GSScheme stores everything in a Google Cloud Storage bucket: gs://bucket/prefix
	GSScheme = "gs"

	// OSSScheme stores everything in an Aliyun OSS bucket: oss://bucket/prefix
	OSSScheme = "oss"

	// FileScheme stores everything in a local directory: file:///path
	FileScheme = "file"

	// BoltScheme stores snapshots in a local directory and version logs in a bbolt file inside it: bolt:///path
	BoltScheme = "bolt"

	// MemScheme keeps everything in memory for the life of the process: mem://
	MemScheme = "mem"

	defaultScheme = FileScheme
)

// DBFactory creates a Database for one url scheme.
type DBFactory interface {
	CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error)
}

// DBFactories maps url schemes to their factories.
var DBFactories = map[string]DBFactory{
	AWSScheme:  AWSFactory{},
	GSScheme:   GSFactory{},
	OSSScheme:  OSSFactory{},
	FileScheme: FileFactory{},
	BoltScheme: BoltFactory{},
	MemScheme:  MemFactory{},
}

// Connect creates the Database addressed by |urlStr|. A url without a scheme is a local directory.
func Connect(ctx context.Context, urlStr string, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	urlObj, err := Parse(urlStr)
	if err != nil {
		return nil, err
	}

	if fact, ok := DBFactories[strings.ToLower(urlObj.Scheme)]; ok {
		return fact.CreateDB(ctx, urlObj, params, opts)
	}

	return nil, fmt.Errorf("unknown url scheme: '%s'", urlObj.Scheme)
}

// Parse parses a storage url. Unlike url.Parse it accepts the bracketed "[table:bucket]" host of aws urls and
// treats a bare path as a file url.
func Parse(urlStr string) (*url.URL, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return nil, fmt.Errorf("empty storage url")
	}

	idx := strings.Index(urlStr, "://")
	if idx == -1 {
		return &url.URL{Scheme: defaultScheme, Path: urlStr}, nil
	}

	scheme, rest := urlStr[:idx], urlStr[idx+3:]
	if scheme == "" {
		return nil, fmt.Errorf("invalid storage url '%s'", urlStr)
	}

	host, path := rest, ""
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end == -1 {
			return nil, fmt.Errorf("invalid storage url '%s': unterminated '['", urlStr)
		}
		host, path = rest[1:end], rest[end+1:]
	} else if slash := strings.Index(rest, "/"); slash != -1 {
		host, path = rest[:slash], rest[slash:]
	}

	path, err := url.PathUnescape(path)
	if err != nil {
		return nil, err
	}

	return &url.URL{Scheme: strings.ToLower(scheme), Host: host, Path: path}, nil
}

// validatePath strips leading and trailing slashes and requires a non-empty remainder.
func validatePath(path string) (string, error) {
	path = strings.Trim(path, "/")
	if len(path) == 0 {
		return "", fmt.Errorf("invalid database name")
	}
	return path, nil
}
