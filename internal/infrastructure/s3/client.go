package s3infra

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/infrastructure/awsconf"
)

// Store writes lead exports to a bucket and hands out presigned download links.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewClient creates an S3 client. Against LocalStack it switches to
// path-style addressing.
func NewClient(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointURL != ""
	}), nil
}

func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{client: client, presign: s3.NewPresignClient(client), bucket: bucket}
}

// Upload streams r to key and returns the object location.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return objectURI(s.bucket, key), nil
}

// PresignedURL generates a time-limited GET URL for key.
func (s *Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

func objectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
