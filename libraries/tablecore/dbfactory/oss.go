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
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
)

const (
	// OSSEndpointParam sets the OSS endpoint. Otherwise it comes from OSS_ENDPOINT.
	OSSEndpointParam = "oss-endpoint"

	ossEndpointEnv        = "OSS_ENDPOINT"
	ossAccessKeyIDEnv     = "OSS_ACCESS_KEY_ID"
	ossAccessKeySecretEnv = "OSS_ACCESS_KEY_SECRET"
)

// OSSFactory creates databases in an Aliyun OSS bucket. Credentials come from OSS_ACCESS_KEY_ID and
// OSS_ACCESS_KEY_SECRET.
type OSSFactory struct {
}

func (fact OSSFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	if urlObj.Host == "" {
		return nil, errors.New("oss url is missing a bucket")
	}

	endpoint, ok := stringParam(params, OSSEndpointParam)
	if !ok || endpoint == "" {
		endpoint = os.Getenv(ossEndpointEnv)
	}
	if endpoint == "" {
		return nil, errors.New("no oss endpoint; set " + ossEndpointEnv + " or the " + OSSEndpointParam + " parameter")
	}

	client, err := oss.New(endpoint, os.Getenv(ossAccessKeyIDEnv), os.Getenv(ossAccessKeySecretEnv))
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(urlObj.Path, "/")
	bs, err := blobstore.NewOSSBlobstore(client, urlObj.Host, prefix)
	if err != nil {
		return nil, err
	}
	return db.New(urlObj.Host+"/"+prefix, bs, manifest.NewBlobstoreManifest(bs), opts)
}
