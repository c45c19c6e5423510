package catalog

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	k := in.Key["package_id"].(*types.AttributeValueMemberN).Value
	item, ok := m.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}

func seed(t *testing.T, m *mockDynamo, p Package) {
	t.Helper()
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		t.Fatalf("marshal package: %v", err)
	}
	m.items["1"] = item
}

func TestGetActive(t *testing.T) {
	mock := &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
	seed(t, mock, Package{ID: 1, Name: "1 Day Package", Price: 10000, DurationHours: 24, ProfileName: "1day", IsActive: true})
	s := NewStore(mock, "packages")

	p, err := s.GetActive(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ProfileName != "1day" {
		t.Fatalf("expected active package, got %+v", p)
	}
}

func TestGetActive_Inactive(t *testing.T) {
	mock := &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
	seed(t, mock, Package{ID: 1, Name: "Retired", Price: 5000, IsActive: false})
	s := NewStore(mock, "packages")

	p, err := s.GetActive(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("inactive package must not be sellable, got %+v", p)
	}
}

func TestGetActive_Missing(t *testing.T) {
	mock := &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
	s := NewStore(mock, "packages")

	p, err := s.GetActive(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("missing package must be nil, got %+v", p)
	}
}
