package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/infrastructure/awsconf"
)

// NewClient creates a DynamoDB client, honouring the LocalStack endpoint override.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}
