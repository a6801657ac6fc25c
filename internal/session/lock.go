package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/dijitalmektup/internal/model"
)

const DefaultTTL = 30 * time.Second

// LockManager implements Locker on a DynamoDB table keyed by resource_id,
// relying on the table TTL to clear abandoned locks.
type LockManager struct {
	client      *dynamodb.Client
	tableName   string
	ttlDuration time.Duration
}

// NewLockManager creates a new LockManager.
func NewLockManager(client *dynamodb.Client, tableName string) *LockManager {
	return &LockManager{
		client:      client,
		tableName:   tableName,
		ttlDuration: DefaultTTL,
	}
}

// AcquireLock succeeds if no lock exists, the existing lock has expired, or
// the holder already owns it (refresh).
func (m *LockManager) AcquireLock(ctx context.Context, resource string, holder string) (*model.LockSession, error) {
	now := time.Now().Unix()

	s := model.LockSession{
		Resource:  resource,
		Holder:    holder,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}

	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item:      item,
		ConditionExpression: aws.String(
			"attribute_not_exists(resource_id) OR expires_at < :now OR holder_id = :holder",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":holder": &types.AttributeValueMemberS{Value: holder},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return &s, nil
}

// Heartbeat extends the lock TTL if the holder owns the lock.
func (m *LockManager) Heartbeat(ctx context.Context, resource string, holder string) (*model.LockSession, error) {
	expiresAt := time.Now().Unix() + int64(m.ttlDuration.Seconds())

	out, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"resource_id": &types.AttributeValueMemberS{Value: resource},
		},
		UpdateExpression:    aws.String("SET expires_at = :expires_at"),
		ConditionExpression: aws.String("holder_id = :holder"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt)},
			":holder":     &types.AttributeValueMemberS{Value: holder},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}

	var s model.LockSession
	if err := attributevalue.UnmarshalMap(out.Attributes, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}
	return &s, nil
}

// ReleaseLock removes the lock if the holder owns it.
func (m *LockManager) ReleaseLock(ctx context.Context, resource string, holder string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"resource_id": &types.AttributeValueMemberS{Value: resource},
		},
		ConditionExpression: aws.String("holder_id = :holder"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":holder": &types.AttributeValueMemberS{Value: holder},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// GetLockStatus retrieves the current lock status.
func (m *LockManager) GetLockStatus(ctx context.Context, resource string) (*model.LockSession, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"resource_id": &types.AttributeValueMemberS{Value: resource},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}
	if out.Item == nil {
		return nil, nil // No lock
	}

	var s model.LockSession
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock: %w", err)
	}

	// TTL deletion is lazy, so expired items can still be returned.
	if s.ExpiresAt < time.Now().Unix() {
		return nil, nil
	}
	return &s, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
