package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/clipcast/internal/config"
)

func testS3Backend(t *testing.T) *S3Backend {
	t.Helper()

	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_ENDPOINT not set, skipping S3 integration tests")
	}

	backend, err := NewS3Backend(context.Background(), config.S3Config{
		Endpoint:        endpoint,
		Region:          os.Getenv("S3_REGION"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		BucketPrefix:    "clipcast-test-",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	return backend
}

func TestS3Backend(t *testing.T) {
	backend := testS3Backend(t)
	ctx := context.Background()
	content := []byte("Hello, S3!")

	require.NoError(t, backend.Put(ctx, "media", "small.txt", bytes.NewReader(content), int64(len(content))))

	exists, err := backend.Exists(ctx, "media", "small.txt")
	require.NoError(t, err)
	require.True(t, exists)

	rc, err := backend.Get(ctx, "media", "small.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.Equal(t, content, got)

	require.NoError(t, backend.Delete(ctx, "media", "small.txt"))

	_, err = backend.Get(ctx, "media", "small.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestS3BackendMultipart(t *testing.T) {
	backend := testS3Backend(t)
	ctx := context.Background()

	large := bytes.Repeat([]byte("v"), partSize*2+1024)

	// Unknown size forces the multipart path as well.
	require.NoError(t, backend.Put(ctx, "media", "large.mp4", bytes.NewReader(large), -1))

	rc, err := backend.Get(ctx, "media", "large.mp4")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	require.Equal(t, len(large), len(got))

	require.NoError(t, backend.Delete(ctx, "media", "large.mp4"))
}

func TestNewS3BackendValidation(t *testing.T) {
	_, err := NewS3Backend(context.Background(), config.S3Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewS3Backend(context.Background(), config.S3Config{Region: "us-east-1"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
