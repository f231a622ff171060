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
	"time"

	"go.etcd.io/bbolt"

	"github.com/dolthub/verdb/store/hash"
)

var manifestBucket = []byte("manifests")

// BoltManifest keeps documents in a single bbolt file. Each Update runs in one read-write transaction, so the
// lock comparison and the write are atomic across processes sharing the file.
type BoltManifest struct {
	path string
	db   *bbolt.DB
}

var _ Manifest = &BoltManifest{}

// OpenBoltManifest opens or creates the bbolt file at |path|.
func OpenBoltManifest(path string) (*BoltManifest, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(manifestBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltManifest{path: path, db: db}, nil
}

func (bm *BoltManifest) Name() string {
	return bm.path
}

// Close releases the bbolt file.
func (bm *BoltManifest) Close() error {
	return bm.db.Close()
}

func (bm *BoltManifest) ParseIfExists(ctx context.Context, name string) (bool, Contents, error) {
	var exists bool
	var contents Contents
	err := bm.db.View(func(tx *bbolt.Tx) error {
		var err error
		exists, contents, err = readBolt(tx, name)
		return err
	})
	if err != nil {
		return false, Contents{}, err
	}
	return exists, contents, nil
}

func (bm *BoltManifest) Update(ctx context.Context, name string, lastLock hash.Hash, newContents Contents) (Contents, error) {
	if err := ctx.Err(); err != nil {
		return Contents{}, err
	}

	result := newContents
	err := bm.db.Update(func(tx *bbolt.Tx) error {
		_, upstream, err := readBolt(tx, name)
		if err != nil {
			return err
		}

		if upstream.Lock != lastLock {
			result = upstream
			return nil
		}

		return tx.Bucket(manifestBucket).Put([]byte(name), marshalContents(newContents))
	})
	if err != nil {
		return Contents{}, err
	}

	return result, nil
}

// readBolt parses the document |name| into memory owned by the caller; bbolt values are only valid for the life
// of |tx|.
func readBolt(tx *bbolt.Tx, name string) (bool, Contents, error) {
	val := tx.Bucket(manifestBucket).Get([]byte(name))
	if val == nil {
		return false, Contents{}, nil
	}

	contents, err := parseContents(bytes.NewReader(val))
	if err != nil {
		return false, Contents{}, err
	}
	return true, contents, nil
}
