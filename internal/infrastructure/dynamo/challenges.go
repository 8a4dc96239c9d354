package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/guestlist-api/internal/domain"
)

// ChallengeRepo stores one verification challenge per subject.
// PK: subject. purge_at is the table TTL attribute.
type ChallengeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewChallengeRepo(client *dynamodb.Client, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName}
}

func (r *ChallengeRepo) Get(ctx context.Context, subject string) (*domain.Challenge, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSubject, subject),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	var c domain.Challenge
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &c, nil
}

func (r *ChallengeRepo) Put(ctx context.Context, c *domain.Challenge) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Swap replaces the record only while it still carries c.ChallengeID at
// expectedVersion.
func (r *ChallengeRepo) Swap(ctx context.Context, c *domain.Challenge, expectedVersion int64) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("#cid = :cid AND #ver = :ver"),
		ExpressionAttributeNames: map[string]string{
			"#cid": fieldChallengeID,
			"#ver": fieldVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": strVal(c.ChallengeID),
			":ver": numVal(expectedVersion),
		},
	})
	if conditionFailed(err) {
		return fmt.Errorf("challenge changed: %w", domain.ErrConflict)
	}
	return err
}

// DeleteIfCurrent is a no-op when a newer challenge has replaced challengeID.
func (r *ChallengeRepo) DeleteIfCurrent(ctx context.Context, subject, challengeID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldSubject, subject),
		ConditionExpression:      aws.String("#cid = :cid"),
		ExpressionAttributeNames: map[string]string{"#cid": fieldChallengeID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": strVal(challengeID),
		},
	})
	if conditionFailed(err) {
		return nil
	}
	return err
}
