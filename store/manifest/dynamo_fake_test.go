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
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
)

type fakeDDB struct {
	data             map[string]map[string]types.AttributeValue
	t                *testing.T
	numPuts, numGets int64
}

func makeFakeDDB(t *testing.T) *fakeDDB {
	return &fakeDDB{
		data: map[string]map[string]types.AttributeValue{},
		t:    t,
	}
}

func (m *fakeDDB) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key, ok := input.Key[dbAttr].(*types.AttributeValueMemberS)
	assert.True(m.t, ok, "key should have been a String: %+v", input.Key[dbAttr])

	atomic.AddInt64(&m.numGets, 1)
	return &dynamodb.GetItemOutput{Item: m.data[key.Value]}, nil
}

func (m *fakeDDB) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key, ok := input.Item[dbAttr].(*types.AttributeValueMemberS)
	assert.True(m.t, ok, "key should have been a String: %+v", input.Item[dbAttr])
	assert.NotNil(m.t, input.ConditionExpression)

	current, present := m.data[key.Value]
	switch *input.ConditionExpression {
	case valueNotExists:
		if present {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case valueEqualsExpression:
		prev := input.ExpressionAttributeValues[prevLockExpressionValuesKey].(*types.AttributeValueMemberB).Value
		if !present || !bytes.Equal(current[lockAttr].(*types.AttributeValueMemberB).Value, prev) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	default:
		m.t.Fatalf("unexpected condition %s", *input.ConditionExpression)
	}

	m.data[key.Value] = input.Item
	atomic.AddInt64(&m.numPuts, 1)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *fakeDDB) NumGets() int64 {
	return atomic.LoadInt64(&m.numGets)
}
