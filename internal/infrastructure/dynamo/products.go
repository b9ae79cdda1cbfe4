package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-shop-api/internal/domain"
)

// ProductRepo reads the catalog. Catalog writes belong to the admin tooling.
type ProductRepo struct {
	client    API
	tableName string
}

func NewProductRepo(client API, tableName string) *ProductRepo {
	return &ProductRepo{client: client, tableName: tableName}
}

func (r *ProductRepo) Get(ctx context.Context, productID string) (*domain.Product, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("product_id", productID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	var p domain.Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
