package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/infrastructure/awsconf"
)

// publisher is the part of the SNS client the trigger uses.
type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Trigger publishes scrape requests to the ingestion topic.
type Trigger struct {
	client   publisher
	topicARN string
}

func NewTrigger(ctx context.Context, cfg *config.Config) (*Trigger, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	return &Trigger{client: sns.NewFromConfig(awsCfg), topicARN: cfg.IngestTopicARN}, nil
}

func (t *Trigger) Trigger(ctx context.Context, req domain.ScrapeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal scrape request: %w", err)
	}
	_, err = t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.topicARN),
		Subject:  aws.String("scrape-request"),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
