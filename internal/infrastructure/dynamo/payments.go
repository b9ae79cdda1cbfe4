package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-shop-api/internal/domain"
)

// PaymentRepo stores checkout attempts. PK: payment_id, GSIs on authority and
// user_id/created_at.
type PaymentRepo struct {
	client     API
	tableName  string
	usersTable string
}

func NewPaymentRepo(client API, tableName, usersTable string) *PaymentRepo {
	return &PaymentRepo{client: client, tableName: tableName, usersTable: usersTable}
}

func (r *PaymentRepo) Put(ctx context.Context, p *domain.Payment) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(payment_id)"),
	})
	return err
}

// Get reads a payment by id with a strongly consistent read. The authority
// index is eventually consistent, so callers that branch on Success re-read here.
func (r *PaymentRepo) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldPaymentID, paymentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
	}
	var p domain.Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) GetByAuthority(ctx context.Context, authority string) (*domain.Payment, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("authority-index"),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldAuthority},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: authority}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("payment with authority %s: %w", authority, domain.ErrNotFound)
	}
	var p domain.Payment
	if err := attributevalue.UnmarshalMap(out.Items[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListSuccessfulByUser returns the user's settled payments, newest first.
func (r *PaymentRepo) ListSuccessfulByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("#u = :u"),
		FilterExpression:       aws.String("#s = :t"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUserID,
			"#s": fieldSuccess,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
		ScanIndexForward: aws.Bool(false),
	}
	var payments []domain.Payment
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.Payment
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		payments = append(payments, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return payments, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Settle marks the payment successful and delivered and replaces the user's
// entitlements in one transaction. It returns domain.ErrAlreadySettled when the payment was
// settled before, and domain.ErrStaleWrite when the user changed since read.
func (r *PaymentRepo) Settle(ctx context.Context, s domain.Settlement) error {
	now := time.Now().UTC()
	nowAV, err := attributevalue.Marshal(now)
	if err != nil {
		return err
	}
	prevAV, err := attributevalue.Marshal(s.UserUpdatedAt)
	if err != nil {
		return err
	}
	entAV, err := attributevalue.Marshal(s.Entitlements)
	if err != nil {
		return fmt.Errorf("marshal entitlements: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 strKey(fieldPaymentID, s.PaymentID),
				UpdateExpression:    aws.String("SET #r = :r, #s = :t, #st = :st, #u = :now"),
				ConditionExpression: aws.String("attribute_exists(payment_id) AND #s = :f"),
				ExpressionAttributeNames: map[string]string{
					"#r": fieldRefID, "#s": fieldSuccess, "#st": fieldStatus, "#u": fieldUpdatedAt,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":r":   &types.AttributeValueMemberS{Value: s.RefID},
					":st":  &types.AttributeValueMemberS{Value: string(domain.PaymentDelivered)},
					":t":   &types.AttributeValueMemberBOOL{Value: true},
					":f":   &types.AttributeValueMemberBOOL{Value: false},
					":now": nowAV,
				},
			}},
			{Update: &types.Update{
				TableName:           aws.String(r.usersTable),
				Key:                 strKey(fieldUserID, s.UserID),
				UpdateExpression:    aws.String("SET #e = :e, #u = :now"),
				ConditionExpression: aws.String("#u = :prev"),
				ExpressionAttributeNames: map[string]string{
					"#e": fieldEntitlements, "#u": fieldUpdatedAt,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":e":    entAV,
					":now":  nowAV,
					":prev": prevAV,
				},
			}},
		},
	})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := tce.CancellationReasons
		if len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
			return domain.ErrAlreadySettled
		}
		if len(reasons) > 1 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
			return domain.ErrStaleWrite
		}
	}
	return fmt.Errorf("settle payment %s: %w", s.PaymentID, err)
}
