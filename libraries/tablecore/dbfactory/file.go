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
	"errors"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
)

const (
	// CreateDirParam creates the database directory if it does not exist. Without it the directory must exist.
	CreateDirParam = "create-dir"

	// BoltFile is the name of the bbolt manifest file inside a bolt database directory.
	BoltFile = "manifest.db"
)

// ErrIsFile is returned when a database path names a file instead of a directory.
var ErrIsFile = errors.New("path is a file")

// FileFactory creates databases in a local directory. Snapshots, fragments and version logs are files.
type FileFactory struct {
}

func (fact FileFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	path, err := localPath(urlObj, params)
	if err != nil {
		return nil, err
	}

	bs, err := blobstore.NewLocalBlobstore(path)
	if err != nil {
		return nil, err
	}
	return db.New(filepath.Base(path), bs, manifest.NewBlobstoreManifest(bs), opts)
}

// BoltFactory creates databases in a local directory whose version logs live in a single bbolt file.
type BoltFactory struct {
}

func (fact BoltFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	path, err := localPath(urlObj, params)
	if err != nil {
		return nil, err
	}

	bs, err := blobstore.NewLocalBlobstore(filepath.Join(path, "blobs"))
	if err != nil {
		return nil, err
	}

	bm, err := manifest.OpenBoltManifest(filepath.Join(path, BoltFile))
	if err != nil {
		return nil, err
	}

	d, err := db.New(filepath.Base(path), bs, bm, opts)
	if err != nil {
		bm.Close()
		return nil, err
	}
	d.AddCloser(bm)
	return d, nil
}

func localPath(urlObj *url.URL, params map[string]interface{}) (string, error) {
	path := filepath.FromSlash(urlObj.Host + urlObj.Path)
	if path == "" {
		return "", errors.New("missing database directory")
	}

	err := validateDir(path)
	if errors.Is(err, os.ErrNotExist) && boolParam(params, CreateDirParam) {
		err = os.MkdirAll(path, os.ModePerm)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func validateDir(path string) error {
	info, err := os.Stat(path)

	if err != nil {
		return err
	} else if !info.IsDir() {
		return ErrIsFile
	}

	return nil
}

func boolParam(params map[string]interface{}, name string) bool {
	val, ok := params[name]
	if !ok {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

func stringParam(params map[string]interface{}, name string) (string, bool) {
	val, ok := params[name]
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}
