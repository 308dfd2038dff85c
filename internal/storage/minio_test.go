package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMinIOStoreRequiresBucket(t *testing.T) {
	_, err := NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestMinIOStorePresignedURL(t *testing.T) {
	// With an explicit region the client signs locally without a bucket-location lookup.
	store, err := NewMinIOStore(MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
		Bucket:    "resumes",
	})
	require.NoError(t, err)

	raw, err := store.PresignedURL(context.Background(), "resumes/lead_lovelace_a1b2.docx", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/resumes/resumes/lead_lovelace_a1b2.docx", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}
