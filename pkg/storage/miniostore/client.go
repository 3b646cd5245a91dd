// Package miniostore backs the storage.Store interface with MinIO or any
// S3-compatible object store. Switching providers is a configuration change,
// not a code change.
package miniostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

type Client struct {
	client *minio.Client
	bucket string
	useSSL bool
}

var _ storage.Store = (*Client)(nil)

// NewClient builds a MinIO-backed store and ensures the bucket exists.
func NewClient(ctx context.Context, cfg config.MinioConfig, logg *logger.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	raw, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := raw.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := raw.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	if logg != nil {
		logg.Info(ctx, "minio client initialized")
	}

	return &Client{client: raw, bucket: cfg.Bucket, useSSL: cfg.UseSSL}, nil
}

// Upload streams the object to the bucket. MinIO reports transfer progress
// through the reader, so the callback wraps it.
func (c *Client) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	if objectPath == "" {
		return "", errors.New("object path is required")
	}

	reader := r
	if progress != nil {
		reader = &progressReader{inner: r, total: size, progress: progress}
	}

	_, err := c.client.PutObject(ctx, c.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", objectPath, err)
	}
	return c.PublicURL(objectPath), nil
}

// Delete removes the object; MinIO treats missing objects as success, which
// already satisfies the idempotent-delete contract.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	err := c.client.RemoveObject(ctx, c.bucket, objectPath, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return storage.ErrNotFound
		}
		return fmt.Errorf("remove object %q: %w", objectPath, err)
	}
	return nil
}

// PublicURL resolves the browser-accessible URL for the object.
func (c *Client) PublicURL(objectPath string) string {
	scheme := "http"
	if c.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.client.EndpointURL().Host, c.bucket, strings.TrimLeft(objectPath, "/"))
}

// Ping verifies the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q missing", c.bucket)
	}
	return nil
}

type progressReader struct {
	inner    io.Reader
	total    int64
	sent     int64
	progress storage.ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.inner.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.progress(p.sent, p.total)
	}
	return n, err
}
