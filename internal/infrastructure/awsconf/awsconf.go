// Package awsconf builds the shared AWS SDK configuration. When
// cfg.AWSEndpointURL is set (LocalStack) every client is pointed at it.
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/guestlist-api/internal/config"
)

// Load resolves region and credentials. An empty region falls back to cfg.AWSRegion.
func Load(ctx context.Context, cfg *config.Config, region string) (aws.Config, error) {
	if region == "" {
		region = cfg.AWSRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AWSEndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
	}
	return awsCfg, nil
}
