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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/store/blobstore"
	"github.com/dolthub/verdb/store/manifest"
)

const (
	// AWSRegionParam is a creation parameter that can be used to set the AWS region
	AWSRegionParam = "aws-region"

	// AWSCredsTypeParam is a creation parameter that can be used to set the type of credentials that should be used.
	// valid values are role, env, auto, and file
	AWSCredsTypeParam = "aws-creds-type"

	// AWSCredsFileParam is a creation parameter that can be used to specify a credential file to use.
	AWSCredsFileParam = "aws-creds-file"

	// AWSCredsProfile is a creation parameter that can be used to specify which AWS profile to use.
	AWSCredsProfile = "aws-creds-profile"
)

var AWSCredTypes = []string{RoleCS.String(), EnvCS.String(), FileCS.String()}

// AWSCredentialSource is where AWS credentials are loaded from.
type AWSCredentialSource int

const (
	InvalidCS AWSCredentialSource = iota - 1

	// Auto will try env first and fall back to role (This is the default)
	AutoCS

	// Role Uses the AWS IAM role of the instance for auth
	RoleCS

	// Env uses the credentials stored in the environment variables AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY
	EnvCS

	// Uses credentials stored in a file
	FileCS
)

func (ct AWSCredentialSource) String() string {
	switch ct {
	case RoleCS:
		return "role"
	case EnvCS:
		return "env"
	case AutoCS:
		return "auto"
	case FileCS:
		return "file"
	default:
		return "invalid"
	}
}

func AWSCredentialSourceFromStr(str string) AWSCredentialSource {
	strlwr := strings.TrimSpace(strings.ToLower(str))
	switch strlwr {
	case "", "auto":
		return AutoCS
	case "role":
		return RoleCS
	case "env":
		return EnvCS
	case "file":
		return FileCS
	default:
		return InvalidCS
	}
}

// AWSFactory creates databases whose snapshots live in an S3 bucket and whose version logs live in a DynamoDB
// table. The url host is "[ddb-table:bucket]" and the path names the database within both.
type AWSFactory struct {
}

func (fact AWSFactory) CreateDB(ctx context.Context, urlObj *url.URL, params map[string]interface{}, opts db.Options) (*db.Database, error) {
	parts := strings.SplitN(urlObj.Host, ":", 2) // [table]:[bucket]
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, errors.New("aws url has an invalid format")
	}

	dbName, err := validatePath(urlObj.Path)
	if err != nil {
		return nil, err
	}

	cfg, err := awsConfigFromParams(ctx, params)
	if err != nil {
		return nil, err
	}

	// Sanity check that we have credentials...
	_, err = cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, err
	}

	bs := blobstore.NewS3Blobstore(s3.NewFromConfig(cfg), parts[1], dbName)
	m := manifest.NewDynamoManifest(parts[0], dbName, dynamodb.NewFromConfig(cfg))
	return db.New(dbName, bs, m, opts)
}

type envCredentials struct {
	accessKeyID, secretAccessKey, sessionToken string
}

func loadEnvCredentials() envCredentials {
	return envCredentials{
		accessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		secretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		sessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}
}

func (c envCredentials) hasKeys() bool {
	return c.accessKeyID != "" && c.secretAccessKey != ""
}

func (c envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	if !c.hasKeys() {
		return aws.Credentials{}, errors.New("error loading env creds; did not find AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY environment variable.")
	}
	return aws.Credentials{
		AccessKeyID:     c.accessKeyID,
		SecretAccessKey: c.secretAccessKey,
		SessionToken:    c.sessionToken,
		Source:          "verdb env",
	}, nil
}

func awsConfigFromParams(ctx context.Context, params map[string]interface{}) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// aws-region always sets the region. Otherwise it comes from AWS_REGION or AWS_DEFAULT_REGION.
	if val, ok := stringParam(params, AWSRegionParam); ok {
		opts = append(opts, config.WithRegion(val))
	}

	awsCredsSource := RoleCS
	if val, ok := stringParam(params, AWSCredsTypeParam); ok {
		awsCredsSource = AWSCredentialSourceFromStr(val)
		if awsCredsSource == InvalidCS {
			return aws.Config{}, errors.New("invalid value for aws-creds-source")
		}
	}

	if val, ok := stringParam(params, AWSCredsProfile); ok {
		opts = append(opts, config.WithSharedConfigProfile(val))
	}

	filePath, hasFile := stringParam(params, AWSCredsFileParam)
	if hasFile && len(filePath) != 0 && awsCredsSource == RoleCS {
		awsCredsSource = FileCS
	}

	switch awsCredsSource {
	case EnvCS:
		opts = append(opts, config.WithCredentialsProvider(aws.NewCredentialsCache(loadEnvCredentials())))
	case FileCS:
		if !hasFile {
			return aws.Config{}, os.ErrNotExist
		}
		opts = append(opts, config.WithSharedCredentialsFiles([]string{filePath}))
	case AutoCS:
		if envCreds := loadEnvCredentials(); envCreds.hasKeys() {
			opts = append(opts, config.WithCredentialsProvider(envCreds))
		} else if hasFile {
			// if env credentials don't exist try looking for a credentials file
			if _, err := os.Stat(filePath); err == nil {
				opts = append(opts, config.WithSharedCredentialsFiles([]string{filePath}))
			}
		}
	// if file and env do not return valid credentials use the default credentials of the box (same as role)
	case RoleCS:
	default:
	}

	return config.LoadDefaultConfig(ctx, opts...)
}
