package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chatcall-backend/pkg/resilience"
)

// MinioConfig holds object storage configuration
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinioClient wraps the MinIO client with a circuit breaker so a storage
// outage fails uploads fast instead of holding request goroutines.
type MinioClient struct {
	client  *minio.Client
	breaker *resilience.CircuitBreaker
}

// NewMinioClient creates a new MinIO client
func NewMinioClient(cfg *MinioConfig) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioClient{
		client: client,
		breaker: resilience.NewCircuitBreaker("minio", resilience.Config{
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
			IsFailure:   isOutage,
		}),
	}, nil
}

// isOutage reports whether err means MinIO is unhealthy rather than that
// it rejected this particular request
func isOutage(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

// BucketExists implements ObjectStorage
func (c *MinioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	var exists bool
	err := c.breaker.Execute(ctx, "bucket_exists", func(ctx context.Context) error {
		var err error
		exists, err = c.client.BucketExists(ctx, bucket)
		return err
	})
	return exists, err
}

// MakeBucket implements ObjectStorage
func (c *MinioClient) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return c.breaker.Execute(ctx, "make_bucket", func(ctx context.Context) error {
		return c.client.MakeBucket(ctx, bucket, opts)
	})
}

// PutObject implements ObjectStorage. The body is streamed once, so uploads are never retried.
func (c *MinioClient) PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	var info minio.UploadInfo
	err := c.breaker.Execute(ctx, "put_object", func(ctx context.Context) error {
		var err error
		info, err = c.client.PutObject(ctx, bucket, key, reader, size, opts)
		return err
	})
	return info, err
}

// RemoveObject implements ObjectStorage
func (c *MinioClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return c.breaker.Execute(ctx, "remove_object", func(ctx context.Context) error {
		return c.client.RemoveObject(ctx, bucket, key, opts)
	})
}

// PresignedGetObject implements ObjectStorage. Signing is local and does not touch the breaker.
func (c *MinioClient) PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error) {
	return c.client.PresignedGetObject(ctx, bucket, key, expires, params)
}
