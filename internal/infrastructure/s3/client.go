// Package s3 stores state snapshots and session archives in S3/MinIO
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Presigned links to session archives are short-lived
const archiveLinkTTL = 15 * time.Minute

// Config holds S3/MinIO configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectStore is the part of the MinIO client used here
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Client wraps the MinIO client with backup helpers
type Client struct {
	client objectStore
	bucket string
	logger zerolog.Logger
}

// NewClient creates a new S3/MinIO client
func NewClient(cfg *Config, logger zerolog.Logger) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "s3").Logger(),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Backups stay private.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		c.logger.Info().Str("bucket", c.bucket).Msg("created S3 bucket")
	}

	return nil
}

// UploadSnapshot stores a copy of the automation state.
// Path structure: snapshots/{YYYY}/{MM}/{DD}/{HHMMSS}_{name}
func (c *Client) UploadSnapshot(ctx context.Context, name string, data []byte) error {
	now := time.Now().UTC()
	objectKey := fmt.Sprintf("snapshots/%d/%02d/%02d/%s_%s",
		now.Year(), now.Month(), now.Day(), now.Format("150405"), name)

	if err := c.put(ctx, objectKey, "application/json", data); err != nil {
		return err
	}
	c.logger.Debug().Str("object_key", objectKey).Int("size", len(data)).Msg("uploaded state snapshot")
	return nil
}

// UploadSessionArchive stores a session archive and returns a presigned download link
func (c *Client) UploadSessionArchive(ctx context.Context, name string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("sessions/%s_%s", time.Now().UTC().Format("20060102T150405"), name)

	if err := c.put(ctx, objectKey, "application/zip", data); err != nil {
		return "", err
	}

	link, err := c.client.PresignedGetObject(ctx, c.bucket, objectKey, archiveLinkTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign session archive: %w", err)
	}

	c.logger.Info().Str("object_key", objectKey).Msg("uploaded session archive")
	return link.String(), nil
}

func (c *Client) put(ctx context.Context, objectKey, contentType string, data []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", objectKey, err)
	}
	return nil
}
