package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verify-api/internal/domain"
)

// VerificationRepo manages verification requests.
// PK: request_id; GSI: identity_key. Housekeeping archives rows past ttl;
// DynamoDB purges them through purge_at.
type VerificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewVerificationRepo(client *dynamodb.Client, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationRequest) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(request_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("request id %s: %w", v.RequestID, domain.ErrConflict)
	}
	return err
}

func (r *VerificationRepo) Get(ctx context.Context, requestID string) (*domain.VerificationRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("request_id", requestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrRequestNotFound
	}
	var v domain.VerificationRequest
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListActiveByIdentity returns the requests still in the active state for an
// identity key. The index is eventually consistent, so callers re-read a row
// before acting on it. Expiry is not filtered here.
func (r *VerificationRepo) ListActiveByIdentity(ctx context.Context, identityKey string) ([]domain.VerificationRequest, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(indexIdentityKey),
		KeyConditionExpression:   aws.String("identity_key = :ik"),
		FilterExpression:         aws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ik":     &types.AttributeValueMemberS{Value: identityKey},
			":active": &types.AttributeValueMemberS{Value: string(domain.RequestActive)},
		},
	})
	var reqs []domain.VerificationRequest
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.VerificationRequest
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		reqs = append(reqs, batch...)
	}
	return reqs, nil
}

// Update sets the given fields. updates must carry updated_at.
func (r *VerificationRepo) Update(ctx context.Context, requestID string, updates map[string]any) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("request_id", requestID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(request_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return domain.ErrRequestNotFound
	}
	return err
}

// Save persists the mutable lifecycle fields of v.
func (r *VerificationRepo) Save(ctx context.Context, v *domain.VerificationRequest) error {
	return r.Update(ctx, v.RequestID, lifecycleUpdates(v))
}

func lifecycleUpdates(v *domain.VerificationRequest) map[string]any {
	updates := map[string]any{
		fieldToken:        v.Token,
		fieldExpiryTime:   v.ExpiryTime,
		fieldAttemptCount: v.AttemptCount,
		fieldResendCount:  v.ResendCount,
		fieldStatus:       v.Status,
	}
	if v.VerifiedAt != nil {
		updates[fieldVerifiedAt] = *v.VerifiedAt
	}
	return touched(updates, v.UpdatedAt)
}

// Delete removes a request that was never handed to a caller.
func (r *VerificationRepo) Delete(ctx context.Context, requestID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("request_id", requestID),
	})
	return err
}

// ScanUnarchivedBefore returns requests whose ttl is before cutoff and which
// have not been archived yet.
func (r *VerificationRepo) ScanUnarchivedBefore(ctx context.Context, cutoff time.Time) ([]domain.VerificationRequest, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#ttl < :cutoff AND attribute_not_exists(#arch)"),
		ExpressionAttributeNames: map[string]string{"#ttl": fieldTTL, "#arch": fieldArchivedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: fmt.Sprint(cutoff.Unix())},
		},
	})
	var reqs []domain.VerificationRequest
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.VerificationRequest
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		reqs = append(reqs, batch...)
	}
	return reqs, nil
}

// MarkArchived stamps archived_at on a request and lets DynamoDB purge it.
func (r *VerificationRepo) MarkArchived(ctx context.Context, requestID string, at time.Time) error {
	return r.Update(ctx, requestID, archivedUpdates(at))
}

func archivedUpdates(at time.Time) map[string]any {
	return touched(map[string]any{
		fieldArchivedAt: at.UTC(),
		fieldPurgeAt:    at.Unix(),
	}, at)
}
