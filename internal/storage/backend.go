// Package storage keeps media bytes on local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/watzon/clipcast/internal/config"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrInvalidConfig = errors.New("invalid backend configuration")
	ErrInvalidKey    = errors.New("invalid bucket or key")
)

// Backend stores opaque objects addressed by bucket and key.
type Backend interface {
	Name() string
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Localizer is implemented by backends whose objects already live on the local disk.
type Localizer interface {
	LocalPath(bucket, key string) (string, error)
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "", "filesystem":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: storage.path is required", ErrInvalidConfig)
		}
		return NewFilesystemBackend(cfg.Path), nil
	case "s3":
		b, err := NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, cfg.Type)
	}
}
