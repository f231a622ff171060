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
	"net/url"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
)

// MemFactory creates in-memory databases. Each call returns a new, empty database.
type MemFactory struct {
}

func (fact MemFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	name := urlObj.Host + urlObj.Path
	if name == "" {
		name = MemScheme
	}
	bs := blobstore.NewInMemoryBlobstore(name)
	return db.New(name, bs, manifest.NewBlobstoreManifest(bs), opts)
}
