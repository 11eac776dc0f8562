package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/watzon/clipcast/internal/config"
)

// Generated videos are usually tens of megabytes, so anything past one part goes multipart.
const partSize = 8 * 1024 * 1024

// S3Backend stores objects in S3 or any compatible service. Buckets map to
// {bucket_prefix}{bucket}.
type S3Backend struct {
	client       *s3.Client
	bucketPrefix string
}

func NewS3Backend(ctx context.Context, cfg config.S3Config) (*S3Backend, error) {
	switch {
	case cfg.Region == "":
		return nil, fmt.Errorf("%w: s3 region is required", ErrInvalidConfig)
	case cfg.AccessKeyID == "" || cfg.SecretAccessKey == "":
		return nil, fmt.Errorf("%w: s3 credentials are required", ErrInvalidConfig)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Backend{client: client, bucketPrefix: cfg.BucketPrefix}, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) bucket(name string) *string {
	return aws.String(b.bucketPrefix + name)
}

func (b *S3Backend) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	if size < 0 || size > partSize {
		return b.putMultipart(ctx, bucket, key, r)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        b.bucket(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("putting object: %w", err)
	}

	return nil
}

func (b *S3Backend) putMultipart(ctx context.Context, bucket, key string, r io.Reader) error {
	created, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: b.bucket(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("creating multipart upload: %w", err)
	}

	abort := func(cause error) error {
		_, _ = b.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   b.bucket(bucket),
			Key:      aws.String(key),
			UploadId: created.UploadId,
		})
		return cause
	}

	var parts []types.CompletedPart
	buf := make([]byte, partSize)
	for number := int32(1); ; number++ {
		n, readErr := io.ReadFull(r, buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return abort(fmt.Errorf("reading part %d: %w", number, readErr))
		}
		if n == 0 {
			break
		}

		uploaded, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     b.bucket(bucket),
			Key:        aws.String(key),
			UploadId:   created.UploadId,
			PartNumber: aws.Int32(number),
			Body:       bytes.NewReader(buf[:n]),
		})
		if err != nil {
			return abort(fmt.Errorf("uploading part %d: %w", number, err))
		}

		parts = append(parts, types.CompletedPart{ETag: uploaded.ETag, PartNumber: aws.Int32(number)})

		if readErr != nil {
			break
		}
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          b.bucket(bucket),
		Key:             aws.String(key),
		UploadId:        created.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("completing multipart upload: %w", err))
	}

	return nil
}

func (b *S3Backend) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: b.bucket(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object: %w", err)
	}

	return resp.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, bucket, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: b.bucket(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	return nil
}

func (b *S3Backend) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: b.bucket(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking object existence: %w", err)
	}

	return true, nil
}
