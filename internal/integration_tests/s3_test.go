package integrationtests

import (
	"bytes"
	"context"
	"nowcast-pipeline/internal/storage"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resourceBucket = "nowcast-resources"

func setupS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(storage.S3ClientConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	require.NoError(t, provider.CreateBucket(ctx, resourceBucket))

	return provider
}

func TestS3Provider_PutGetObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	content := []byte(`{"dist": "gamma", "mean": 3.6, "sd": 3.1}`)
	require.NoError(t, provider.PutObject(ctx, resourceBucket, "generation_time/covid.json", bytes.NewReader(content)))

	data, err := provider.GetObject(ctx, resourceBucket, "generation_time/covid.json")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// Non seekable readers are buffered before upload.
	require.NoError(t, provider.PutObject(ctx, resourceBucket, "cases/belgium.csv", strings.NewReader("date,region\n")))
}

func TestS3Provider_GetMissingObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	_, err := provider.GetObject(ctx, resourceBucket, "missing.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestS3Provider_CreateBucketTwice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)
	assert.NoError(t, provider.CreateBucket(ctx, resourceBucket))
}

func TestS3Provider_ListObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	provider := setupS3Provider(t, ctx)

	for _, key := range []string{"cases/canada.csv", "cases/belgium.csv", "generation_time/covid.json"} {
		require.NoError(t, provider.PutObject(ctx, resourceBucket, key, bytes.NewReader([]byte(key))))
	}

	objects, err := provider.ListObjects(ctx, resourceBucket, "cases/")
	require.NoError(t, err)
	assert.Equal(t, []storage.Object{
		{Name: "cases/belgium.csv", Size: int64(len("cases/belgium.csv"))},
		{Name: "cases/canada.csv", Size: int64(len("cases/canada.csv"))},
	}, objects)
}
