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
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dolthub/verdb/store/hash"
)

const (
	dbAttr   = "db"
	lockAttr = "lck" // 'lock' is a reserved word in dynamo
	versAttr = "vers"
	dataAttr = "data"

	prevLockExpressionValuesKey = ":prev"
)

var (
	valueEqualsExpression = fmt.Sprintf("%s = %s", lockAttr, prevLockExpressionValuesKey)
	valueNotExists        = fmt.Sprintf("attribute_not_exists(%s)", lockAttr)
)

// ddbsvc is the subset of the DynamoDB client used by DynamoManifest.
type ddbsvc interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoManifest assumes the existence of a DynamoDB table whose primary partition key is in String format and
// named `db`. Documents of one namespace are stored as items keyed "<namespace>/<name>".
type DynamoManifest struct {
	table, namespace string
	ddbsvc           ddbsvc
}

var _ Manifest = DynamoManifest{}

// NewDynamoManifest returns a Manifest storing items in |table|.
func NewDynamoManifest(table, namespace string, ddb ddbsvc) DynamoManifest {
	if table == "" || namespace == "" {
		panic("dynamo manifest requires a table and a namespace")
	}
	return DynamoManifest{table, namespace, ddb}
}

func (dm DynamoManifest) Name() string {
	return dm.table + "/" + dm.namespace
}

func (dm DynamoManifest) key(name string) string {
	return dm.namespace + "/" + name
}

func (dm DynamoManifest) ParseIfExists(ctx context.Context, name string) (bool, Contents, error) {
	result, err := dm.ddbsvc.GetItem(ctx, &dynamodb.GetItemInput{
		ConsistentRead: aws.Bool(true), // This doubles the cost :-(
		TableName:      aws.String(dm.table),
		Key: map[string]types.AttributeValue{
			dbAttr: &types.AttributeValueMemberS{Value: dm.key(name)},
		},
	})
	if err != nil {
		return false, Contents{}, err
	}

	// !exists(dbAttr) => uninitialized document
	if len(result.Item) == 0 {
		return false, Contents{}, nil
	}

	contents, err := parseItem(result.Item)
	if err != nil {
		return false, Contents{}, err
	}
	return true, contents, nil
}

func parseItem(item map[string]types.AttributeValue) (Contents, error) {
	vers, ok := item[versAttr].(*types.AttributeValueMemberS)
	if !ok || vers.Value != StorageVersion {
		return Contents{}, ErrCorruptManifest
	}
	lock, ok := item[lockAttr].(*types.AttributeValueMemberB)
	if !ok || len(lock.Value) != hash.ByteLen {
		return Contents{}, ErrCorruptManifest
	}

	var contents Contents
	copy(contents.Lock[:], lock.Value)
	if data, ok := item[dataAttr].(*types.AttributeValueMemberB); ok {
		contents.Data = data.Value
	}
	return contents, nil
}

func (dm DynamoManifest) Update(ctx context.Context, name string, lastLock hash.Hash, newContents Contents) (Contents, error) {
	putArgs := &dynamodb.PutItemInput{
		TableName: aws.String(dm.table),
		Item: map[string]types.AttributeValue{
			dbAttr:   &types.AttributeValueMemberS{Value: dm.key(name)},
			versAttr: &types.AttributeValueMemberS{Value: StorageVersion},
			lockAttr: &types.AttributeValueMemberB{Value: newContents.Lock[:]},
			dataAttr: &types.AttributeValueMemberB{Value: newContents.Data},
		},
	}

	if lastLock.IsEmpty() {
		putArgs.ConditionExpression = aws.String(valueNotExists)
	} else {
		putArgs.ConditionExpression = aws.String(valueEqualsExpression)
		putArgs.ExpressionAttributeValues = map[string]types.AttributeValue{
			prevLockExpressionValuesKey: &types.AttributeValueMemberB{Value: lastLock[:]},
		}
	}

	_, err := dm.ddbsvc.PutItem(ctx, putArgs)
	if err != nil {
		if errIsConditionalCheckFailed(err) {
			_, upstream, err := dm.ParseIfExists(ctx, name)
			if err != nil {
				return Contents{}, err
			}
			return upstream, nil
		}
		return Contents{}, err
	}

	return newContents, nil
}

func errIsConditionalCheckFailed(err error) bool {
	var ccfe *types.ConditionalCheckFailedException
	return errors.As(err, &ccfe)
}
