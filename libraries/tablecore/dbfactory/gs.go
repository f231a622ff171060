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
	"strings"

	"cloud.google.com/go/storage"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
)

// GSFactory creates databases in a Google Cloud Storage bucket. Version logs are blobstore manifests, updated
// with generation preconditions.
type GSFactory struct {
}

func (fact GSFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	if urlObj.Host == "" {
		return nil, errors.New("gs url is missing a bucket")
	}

	gcs, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(urlObj.Path, "/")
	bs := blobstore.NewGCSBlobstore(gcs, urlObj.Host, prefix)
	d, err := db.New(urlObj.Host+"/"+prefix, bs, manifest.NewBlobstoreManifest(bs), opts)
	if err != nil {
		gcs.Close()
		return nil, err
	}
	d.AddCloser(gcs)
	return d, nil
}
