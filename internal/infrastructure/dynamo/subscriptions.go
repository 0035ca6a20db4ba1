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

// SubscriptionRepo manages service subscriptions.
// PK: service_id; GSI: application_id + service_type.
type SubscriptionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSubscriptionRepo(client *dynamodb.Client, tableName string) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, tableName: tableName}
}

func (r *SubscriptionRepo) Put(ctx context.Context, s *domain.Subscription) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(service_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("service id %s: %w", s.ServiceID, domain.ErrConflict)
	}
	return err
}

func (r *SubscriptionRepo) Get(ctx context.Context, serviceID string) (*domain.Subscription, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("service_id", serviceID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrServiceNotFound
	}
	var s domain.Subscription
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByType returns every subscription, active or not, of the given type
// for an application.
func (r *SubscriptionRepo) ListByType(ctx context.Context, applicationID string, serviceType domain.ServiceType) ([]domain.Subscription, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexApplicationServiceType),
		KeyConditionExpression: aws.String("application_id = :aid AND service_type = :st"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: applicationID},
			":st":  &types.AttributeValueMemberS{Value: string(serviceType)},
		},
	})
	if err != nil {
		return nil, err
	}
	var subs []domain.Subscription
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// FindActive returns the active subscription of the given type, or ErrServiceNotFound.
func (r *SubscriptionRepo) FindActive(ctx context.Context, applicationID string, serviceType domain.ServiceType) (*domain.Subscription, error) {
	subs, err := r.ListByType(ctx, applicationID, serviceType)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].IsActive() {
			return &subs[i], nil
		}
	}
	return nil, domain.ErrServiceNotFound
}

// Update sets the given fields. updates must carry updated_at.
func (r *SubscriptionRepo) Update(ctx context.Context, serviceID string, updates map[string]any) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("service_id", serviceID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(service_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return domain.ErrServiceNotFound
	}
	return err
}

// ReplaceConfig overwrites policy and callbacks wholesale. linkRoute is only
// written when non-nil.
func (r *SubscriptionRepo) ReplaceConfig(ctx context.Context, serviceID string, policy domain.VerificationPolicy, success, failure domain.Callback, linkRoute *string, at time.Time) error {
	return r.Update(ctx, serviceID, configUpdates(policy, success, failure, linkRoute, at))
}

func configUpdates(policy domain.VerificationPolicy, success, failure domain.Callback, linkRoute *string, at time.Time) map[string]any {
	updates := map[string]any{
		fieldPolicy:  policy,
		fieldSuccess: success,
		fieldError:   failure,
	}
	if linkRoute != nil {
		updates[fieldLinkRoute] = *linkRoute
	}
	return touched(updates, at)
}

func (r *SubscriptionRepo) SetStatus(ctx context.Context, serviceID string, status domain.ActivationStatus, at time.Time) error {
	return r.Update(ctx, serviceID, touched(map[string]any{fieldStatus: status}, at))
}

// Delete removes a subscription written by a registration that did not complete.
func (r *SubscriptionRepo) Delete(ctx context.Context, serviceID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("service_id", serviceID),
	})
	return err
}
