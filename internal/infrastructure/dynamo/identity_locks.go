package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verify-api/internal/domain"
)

// lockGrace keeps a released-by-expiry lock row around a little past its
// expiry before DynamoDB TTL removes it.
const lockGrace = time.Hour

// IdentityLockRepo guards the one-pending-request-per-identity rule.
// PK: identity_key. A lock is free when absent or when expires_at has passed.
type IdentityLockRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewIdentityLockRepo(client *dynamodb.Client, tableName string) *IdentityLockRepo {
	return &IdentityLockRepo{client: client, tableName: tableName}
}

// Acquire claims identityKey for requestID until expiresAt. A live lock held
// by another request fails with ErrDuplicateActiveRequest.
func (r *IdentityLockRepo) Acquire(ctx context.Context, identityKey, requestID string, expiresAt, now time.Time) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"identity_key": &types.AttributeValueMemberS{Value: identityKey},
			"request_id":   &types.AttributeValueMemberS{Value: requestID},
			"expires_at":   millis(expiresAt),
			fieldTTL:       &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Add(lockGrace).Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(identity_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": millis(now),
		},
	})
	if isConditionFailed(err) {
		return domain.ErrDuplicateActiveRequest
	}
	if err != nil {
		return fmt.Errorf("acquire identity lock: %w", err)
	}
	return nil
}

// Extend moves the expiry of a lock still held by requestID. A lock taken
// over by another request is left alone.
func (r *IdentityLockRepo) Extend(ctx context.Context, identityKey, requestID string, expiresAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("identity_key", identityKey),
		UpdateExpression:    aws.String("SET expires_at = :exp, #ttl = :ttl"),
		ConditionExpression: aws.String("request_id = :rid"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": fieldTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":exp": millis(expiresAt),
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Add(lockGrace).Unix(), 10)},
			":rid": &types.AttributeValueMemberS{Value: requestID},
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("extend identity lock: %w", err)
	}
	return nil
}

// Release frees the lock if requestID still holds it.
func (r *IdentityLockRepo) Release(ctx context.Context, identityKey, requestID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("identity_key", identityKey),
		ConditionExpression: aws.String("request_id = :rid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: requestID},
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("release identity lock: %w", err)
	}
	return nil
}

func millis(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}
