package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/hotspotid/voucherflow/internal/aws"
)

// ErrConflict indicates a conditional write lost a race: the transaction was
// no longer pending, or the voucher row already existed. Callers recover by
// re-reading the now-terminal state.
var ErrConflict = errors.New("conditional write lost the race")

// ErrDuplicateID indicates a transaction id collision on create.
var ErrDuplicateID = errors.New("transaction id already exists")

// Store persists transactions, vouchers, and webhook audit logs.
type Store struct {
	client            aws.DynamoDBAPI
	transactionsTable string
	vouchersTable     string
	webhookLogsTable  string
	nowFunc           func() time.Time
}

// NewStore returns a Store bound to the three tables.
func NewStore(client aws.DynamoDBAPI, transactionsTable, vouchersTable, webhookLogsTable string) *Store {
	return &Store{
		client:            client,
		transactionsTable: transactionsTable,
		vouchersTable:     vouchersTable,
		webhookLogsTable:  webhookLogsTable,
		nowFunc:           time.Now,
	}
}

// CreateTransaction inserts a new pending transaction, guarded against id
// reuse. Returns ErrDuplicateID on collision so the caller can regenerate.
func (s *Store) CreateTransaction(ctx context.Context, t Transaction) error {
	now := s.nowFunc().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusPending
	}

	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.transactionsTable,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(transaction_id)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("put transaction: %w", err)
	}
	return nil
}

// GetTransaction fetches a transaction by public id. Returns (nil, nil) if not found.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.transactionsTable,
		Key:       transactionKey(transactionID),
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var t Transaction
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &t, nil
}

// CommitSuccess performs the success transition as one atomic unit:
// a conditional pending->success update on the transaction plus the voucher
// insert guarded by a uniqueness condition on the owning id. A concurrent
// duplicate trigger makes the whole write fail with ErrConflict and commits
// nothing; exactly one voucher row ever survives.
func (s *Store) CommitSuccess(ctx context.Context, transactionID, gatewayRef string, v Voucher) error {
	now := s.nowFunc().UTC()
	v.TransactionID = transactionID

	voucherItem, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal voucher: %w", err)
	}

	update := &types.Update{
		TableName:                &s.transactionsTable,
		Key:                      transactionKey(transactionID),
		UpdateExpression:         awsString("SET #s = :new, gateway_ref = :ref, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusSuccess},
			":ref":      &types.AttributeValueMemberS{Value: gatewayRef},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: update},
			{
				Put: &types.Put{
					TableName:           &s.vouchersTable,
					Item:                voucherItem,
					ConditionExpression: awsString("attribute_not_exists(transaction_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrConflict
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// MarkTerminal conditionally transitions a pending transaction to a terminal
// failure state (failed or expired). Returns ErrConflict when another trigger
// already moved the transaction out of pending.
func (s *Store) MarkTerminal(ctx context.Context, transactionID, newStatus string) error {
	if newStatus != StatusFailed && newStatus != StatusExpired {
		return fmt.Errorf("not a terminal failure status: %s", newStatus)
	}
	now := s.nowFunc().UTC()

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.transactionsTable,
		Key:                      transactionKey(transactionID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
		},
		ConditionExpression: awsString("#s = :expected"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrConflict
		}
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// GetVoucher fetches the voucher owned by a transaction. Returns (nil, nil) if not found.
func (s *Store) GetVoucher(ctx context.Context, transactionID string) (*Voucher, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.vouchersTable,
		Key:       transactionKey(transactionID),
	})
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var v Voucher
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal voucher: %w", err)
	}
	return &v, nil
}

// PutWebhookLog writes one audit entry for an inbound callback attempt.
func (s *Store) PutWebhookLog(ctx context.Context, w WebhookLog) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(w)
	if err != nil {
		return fmt.Errorf("marshal webhook log: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.webhookLogsTable,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put webhook log: %w", err)
	}
	return nil
}

// MarkWebhookProcessed flips the processed flag. Best-effort trace only.
func (s *Store) MarkWebhookProcessed(ctx context.Context, webhookID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.webhookLogsTable,
		Key: map[string]types.AttributeValue{
			"webhook_id": &types.AttributeValueMemberS{Value: webhookID},
		},
		UpdateExpression: awsString("SET processed = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}

func transactionKey(transactionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
	}
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
