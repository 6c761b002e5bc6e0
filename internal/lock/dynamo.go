package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/marketplace-orderflow/internal/aws"
)

// leaseRecord is one row of the locks table. expires_at doubles as the table TTL attribute.
type leaseRecord struct {
	LockKey   string    `dynamodbav:"lock_key"` // PK
	Owner     string    `dynamodbav:"owner"`
	ExpiresAt int64     `dynamodbav:"expires_at"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// DynamoLocker implements Locker with conditional writes on a DynamoDB table.
// A lease whose expires_at has passed can be taken over by another owner.
type DynamoLocker struct {
	client       aws.DynamoDBAPI
	tableName    string
	ttl          time.Duration
	pollInterval time.Duration
	nowFunc      func() time.Time
	logger       *zap.Logger
}

// NewDynamoLocker returns a DynamoLocker.
func NewDynamoLocker(client aws.DynamoDBAPI, tableName string, ttl, pollInterval time.Duration, logger *zap.Logger) *DynamoLocker {
	return &DynamoLocker{
		client:       client,
		tableName:    tableName,
		ttl:          ttl,
		pollInterval: pollInterval,
		nowFunc:      time.Now,
		logger:       logger.Named("dynamo_lock"),
	}
}

// Acquire polls until the lease is taken or ctx is done.
func (l *DynamoLocker) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()
	policy := backoff.WithContext(backoff.NewConstantBackOff(l.pollInterval), ctx)

	err := backoff.Retry(func() error {
		ok, err := l.tryAcquire(ctx, key, owner)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, owner) })
	}, nil
}

// tryAcquire returns (true, nil) if the lease was created or taken over.
func (l *DynamoLocker) tryAcquire(ctx context.Context, key, owner string) (bool, error) {
	now := l.nowFunc()
	item, err := attributevalue.MarshalMap(leaseRecord{
		LockKey:   key,
		Owner:     owner,
		ExpiresAt: now.Add(l.ttl).Unix(),
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal lease: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(lock_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put lease: %w", err)
	}
	return true, nil
}

func (l *DynamoLocker) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression:      awsString("#o = :owner"),
		ExpressionAttributeNames: map[string]string{"#o": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		// a lease that expired and was taken over is not ours to delete
		l.logger.Warn("lease release failed", zap.String("key", key), zap.Error(err))
	}
}

func awsString(s string) *string { return &s }
