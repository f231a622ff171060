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

package versions

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/verdb/store/verr"
)

// Tag names version |v| of the current lineage. Tag names are unique per table and a tag never moves.
func (l *Log) Tag(ctx context.Context, name string, v uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, lock, err := l.load(ctx)
	if err != nil {
		return storageErr(err, "tag")
	}

	if _, ok := doc.find(v); !ok {
		return verr.ErrVersionNotFound.New(v, l.table)
	}
	if _, ok := doc.Tags[name]; ok {
		return verr.ErrAlreadyExists.New("tag", name)
	}

	if doc.Tags == nil {
		doc.Tags = make(map[string]uint64)
	}
	doc.Tags[name] = v

	if err := l.commit(ctx, "tag", lock, &doc); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{"tag": name, "version": v}).Debug("created tag")
	return nil
}

// DeleteTag removes the tag |name|.
func (l *Log) DeleteTag(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, lock, err := l.load(ctx)
	if err != nil {
		return storageErr(err, "delete tag")
	}

	if _, ok := doc.Tags[name]; !ok {
		return verr.ErrTagNotFound.New(name, l.table)
	}
	delete(doc.Tags, name)

	return l.commit(ctx, "delete tag", lock, &doc)
}

// Tags returns the tags of the current lineage sorted by name.
func (l *Log) Tags(ctx context.Context) ([]Tag, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return nil, storageErr(err, "list tags")
	}
	return doc.tagList(), nil
}

// TagVersion resolves the tag |name| to its version.
func (l *Log) TagVersion(ctx context.Context, name string) (Version, error) {
	doc, _, err := l.load(ctx)
	if err != nil {
		return Version{}, storageErr(err, "resolve tag")
	}

	v, ok := doc.Tags[name]
	if !ok {
		return Version{}, verr.ErrTagNotFound.New(name, l.table)
	}

	found, ok := doc.find(v)
	if !ok {
		return Version{}, verr.ErrVersionNotFound.New(v, l.table)
	}
	return found, nil
}
