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

package db

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/dolthub/verdb/store/manifest"
	"github.com/dolthub/verdb/store/verr"
)

const (
	catalogName = "catalog"

	// catalogRetries bounds the re-reads after another process moved the catalog.
	catalogRetries = 5
)

// catalog is the persisted list of a database's tables.
type catalog struct {
	Tables map[string]catalogEntry `json:"tables"`
}

type catalogEntry struct {
	Created time.Time `json:"created"`
}

func (c catalog) names() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c catalog) has(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

func loadCatalog(ctx context.Context, m manifest.Manifest) (catalog, manifest.Contents, error) {
	exists, contents, err := m.ParseIfExists(ctx, catalogName)
	if err != nil {
		return catalog{}, manifest.Contents{}, verr.ErrStorage.Wrap(err, "read catalog")
	}

	cat := catalog{Tables: map[string]catalogEntry{}}
	if !exists {
		return cat, contents, nil
	}

	if err := json.Unmarshal(contents.Data, &cat); err != nil {
		return catalog{}, manifest.Contents{}, verr.ErrCorruptRecord.New(catalogName, err.Error())
	}
	if cat.Tables == nil {
		cat.Tables = map[string]catalogEntry{}
	}
	return cat, contents, nil
}

// editCatalog applies |edit| to the current catalog and writes it back, re-reading and re-applying the edit when
// another writer moved the catalog in between. An error returned by |edit| aborts without writing.
func editCatalog(ctx context.Context, m manifest.Manifest, edit func(cat catalog) error) error {
	op := func() error {
		cat, prev, err := loadCatalog(ctx, m)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := edit(cat); err != nil {
			return backoff.Permanent(err)
		}

		data, err := json.Marshal(cat)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "marshal catalog"))
		}

		next := manifest.NewContents(data)
		upstream, err := m.Update(ctx, catalogName, prev.Lock, next)
		if err != nil {
			return backoff.Permanent(verr.ErrStorage.Wrap(err, "write catalog"))
		}
		if upstream.Lock != next.Lock {
			return verr.ErrConcurrentWrite.New(catalogName)
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), catalogRetries)
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
