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

package manifest

import (
	"bytes"
	"context"
	"path"

	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/hash"
)

const manifestDir = "manifests"

// BlobstoreManifest keeps each document as one blob, relying on CheckAndPut for the lock check.
type BlobstoreManifest struct {
	bs blobstore.Blobstore
}

var _ Manifest = BlobstoreManifest{}

// NewBlobstoreManifest returns a Manifest backed by |bs|.
func NewBlobstoreManifest(bs blobstore.Blobstore) BlobstoreManifest {
	return BlobstoreManifest{bs}
}

func (bsm BlobstoreManifest) Name() string {
	return bsm.bs.Path()
}

func (bsm BlobstoreManifest) versionAndContents(ctx context.Context, name string) (string, Contents, error) {
	reader, ver, err := bsm.bs.Get(ctx, path.Join(manifestDir, name), blobstore.AllRange)
	if err != nil {
		return "", Contents{}, err
	}
	defer reader.Close()

	contents, err := parseContents(reader)
	if err != nil {
		return "", Contents{}, err
	}

	return ver, contents, nil
}

// ParseIfExists looks for the document |name| in the blobstore.
func (bsm BlobstoreManifest) ParseIfExists(ctx context.Context, name string) (bool, Contents, error) {
	_, contents, err := bsm.versionAndContents(ctx, name)
	if err != nil {
		if blobstore.IsNotFoundError(err) {
			return false, Contents{}, nil
		}
		return false, Contents{}, err
	}

	return true, contents, nil
}

// Update replaces the document |name| if its current lock is |lastLock|.
func (bsm BlobstoreManifest) Update(ctx context.Context, name string, lastLock hash.Hash, newContents Contents) (Contents, error) {
	ver, contents, err := bsm.versionAndContents(ctx, name)
	if err != nil && !blobstore.IsNotFoundError(err) {
		return Contents{}, err
	}

	if contents.Lock != lastLock {
		return contents, nil
	}

	data := marshalContents(newContents)
	_, err = bsm.bs.CheckAndPut(ctx, ver, path.Join(manifestDir, name), int64(len(data)), bytes.NewReader(data))
	if err != nil {
		if !blobstore.IsCheckAndPutError(err) {
			return Contents{}, err
		}

		// lost the race between the read and the write
		_, upstream, err := bsm.ParseIfExists(ctx, name)
		if err != nil {
			return Contents{}, err
		}
		return upstream, nil
	}

	return newContents, nil
}
