package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hotspotid/voucherflow/internal/aws"
)

// Package is one sellable voucher package.
type Package struct {
	ID            int     `dynamodbav:"package_id"` // PK
	Name          string  `dynamodbav:"name"`
	Price         float64 `dynamodbav:"price"`
	DurationHours int     `dynamodbav:"duration_hours"`
	ProfileName   string  `dynamodbav:"profile_name"` // hotspot profile on the access device
	IsActive      bool    `dynamodbav:"is_active"`
}

// Store reads the package catalog.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore returns a catalog Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// GetActive fetches a package by id. Returns (nil, nil) when the package does
// not exist or is inactive, so callers treat both as not-for-sale.
func (s *Store) GetActive(ctx context.Context, packageID int) (*Package, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"package_id": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", packageID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Package
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal package: %w", err)
	}
	if !p.IsActive {
		return nil, nil
	}
	return &p, nil
}
