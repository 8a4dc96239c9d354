package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guestlist-api/internal/domain"
)

// OperatorSessionRepo provides typed DynamoDB operations for operator sessions.
type OperatorSessionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOperatorSessionRepo(client *dynamodb.Client, tableName string) *OperatorSessionRepo {
	return &OperatorSessionRepo{client: client, tableName: tableName}
}

func (r *OperatorSessionRepo) Put(ctx context.Context, s *domain.OperatorSession) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OperatorSessionRepo) Get(ctx context.Context, sessionID string) (*domain.OperatorSession, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("session_id", sessionID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	var s domain.OperatorSession
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *OperatorSessionRepo) Disable(ctx context.Context, sessionID string) error {
	return r.update(ctx, sessionID, map[string]interface{}{fieldEnable: false})
}

func (r *OperatorSessionRepo) update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("session_id", sessionID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(session_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if conditionFailed(err) {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return err
}
