package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CounterRepo is an attempt counter store on a DynamoDB table.
// PK: counter_key. expires_at holds unix seconds and is the table TTL
// attribute; DynamoDB deletes lazily, so reads also filter on it.
type CounterRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewCounterRepo(client API, tableName string) *CounterRepo {
	return &CounterRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *CounterRepo) Get(ctx context.Context, key string) (int, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldCounterKey, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	if out.Item == nil {
		return 0, nil
	}
	exp, err := numAttr(out.Item, fieldExpiresAt)
	if err != nil || exp <= r.now().Unix() {
		return 0, nil
	}
	v, err := numAttr(out.Item, fieldValue)
	if err != nil {
		return 0, nil
	}
	return int(v), nil
}

func (r *CounterRepo) Set(ctx context.Context, key string, value int, ttl time.Duration) error {
	exp := r.now().Add(ttl).Unix()
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			fieldCounterKey: &types.AttributeValueMemberS{Value: key},
			fieldValue:      &types.AttributeValueMemberN{Value: strconv.Itoa(value)},
			fieldExpiresAt:  &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("put counter %s: %w", key, err)
	}
	return nil
}

func (r *CounterRepo) Del(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldCounterKey, key),
	})
	if err != nil {
		return fmt.Errorf("delete counter %s: %w", key, err)
	}
	return nil
}

func numAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %s is not a number", name)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}
