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

// ApplicationRepo provides typed DynamoDB operations for the applications table.
// Key and secret are stored as ciphertext; this repo never sees plaintext.
type ApplicationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewApplicationRepo(client *dynamodb.Client, tableName string) *ApplicationRepo {
	return &ApplicationRepo{client: client, tableName: tableName}
}

// Put inserts a new application. An existing id is a conflict.
func (r *ApplicationRepo) Put(ctx context.Context, a *domain.Application) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(application_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("application id %s: %w", a.ApplicationID, domain.ErrConflict)
	}
	return err
}

func (r *ApplicationRepo) Get(ctx context.Context, applicationID string) (*domain.Application, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("application_id", applicationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrApplicationNotFound
	}
	var a domain.Application
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByName finds an application by name regardless of its status.
func (r *ApplicationRepo) GetByName(ctx context.Context, name string) (*domain.Application, error) {
	return r.queryGSI(ctx, indexApplicationName, "application_name", name)
}

// GetByKeyLookup finds an application by the keyed hash of its plaintext API key.
func (r *ApplicationRepo) GetByKeyLookup(ctx context.Context, lookup string) (*domain.Application, error) {
	return r.queryGSI(ctx, indexKeyLookup, fieldKeyLookup, lookup)
}

// ScanActive returns every active application, following pagination to the end.
func (r *ApplicationRepo) ScanActive(ctx context.Context) ([]domain.Application, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberS{Value: string(domain.StatusActive)},
		},
	})
	var apps []domain.Application
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Application
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		apps = append(apps, batch...)
	}
	return apps, nil
}

// Update sets the given fields. updates must carry updated_at.
func (r *ApplicationRepo) Update(ctx context.Context, applicationID string, updates map[string]any) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("application_id", applicationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(application_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return domain.ErrApplicationNotFound
	}
	return err
}

// ReplaceCredentials overwrites the encrypted key pair, its lookup hash and expiry.
func (r *ApplicationRepo) ReplaceCredentials(ctx context.Context, applicationID, encKey, encSecret, lookup string, expiry, at time.Time) error {
	return r.Update(ctx, applicationID, touched(map[string]any{
		fieldAPIKey:    encKey,
		fieldAPISecret: encSecret,
		fieldKeyLookup: lookup,
		fieldKeyExpiry: expiry,
	}, at))
}

// SetStatus flips the soft-delete state.
func (r *ApplicationRepo) SetStatus(ctx context.Context, applicationID string, status domain.ActivationStatus, at time.Time) error {
	return r.Update(ctx, applicationID, touched(map[string]any{fieldStatus: status}, at))
}

// Delete removes an application whose credentials never reached a caller.
func (r *ApplicationRepo) Delete(ctx context.Context, applicationID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("application_id", applicationID),
	})
	return err
}

func (r *ApplicationRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Application, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrApplicationNotFound
	}
	var a domain.Application
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, err
	}
	return &a, nil
}
