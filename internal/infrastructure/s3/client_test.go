package s3infra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURI(t *testing.T) {
	assert.Equal(t, "s3://exports-bucket/exports/leads-1.csv", objectURI("exports-bucket", "exports/leads-1.csv"))
}

func TestPresignedURL_IsSignedAndScoped(t *testing.T) {
	client := s3.New(s3.Options{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
	store := NewStore(client, "exports-bucket")

	url, err := store.PresignedURL(context.Background(), "exports/leads-1.csv", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.Contains(url, "exports-bucket"))
	assert.Contains(t, url, "exports/leads-1.csv")
	assert.Contains(t, url, "X-Amz-Expires=300")
}
