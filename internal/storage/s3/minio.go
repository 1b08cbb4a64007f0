package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/querydesk/querydesk/internal/storage"
)

const userMetadataPrefix = "x-amz-meta-"

// minioBucket implements bucketAPI with minio-go.
type minioBucket struct {
	client *minio.Client
	bucket string
}

func dialMinio(cfg Config) (*minioBucket, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", host, err)
	}
	return &minioBucket{client: client, bucket: strings.TrimSpace(cfg.Bucket)}, nil
}

// splitEndpoint accepts either a bare host[:port] or a URL. An https URL forces
// TLS regardless of useSSL.
func splitEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return "", false, errors.New("s3 endpoint is required")
		}
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		useSSL = true
	case "http":
	default:
		return "", false, fmt.Errorf("unsupported s3 endpoint scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	return parsed.Host, useSSL, nil
}

func (m *minioBucket) PutObject(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, translateError(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag}, nil
}

func (m *minioBucket) GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, translateError(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any bytes are served.
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, storage.ObjectInfo{}, translateError(err)
	}
	return object, objectInfo(stat), nil
}

func (m *minioBucket) StatObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	stat, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateError(err)
	}
	return objectInfo(stat), nil
}

func (m *minioBucket) RemoveObject(ctx context.Context, key string) error {
	return translateError(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioBucket) PresignGetObject(ctx context.Context, key string, ttl time.Duration) (string, error) {
	link, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", translateError(err)
	}
	return link.String(), nil
}

func (m *minioBucket) Exists(ctx context.Context) (bool, error) {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	return exists, translateError(err)
}

func (m *minioBucket) Create(ctx context.Context, region string) error {
	return translateError(m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(stat minio.ObjectInfo) storage.ObjectInfo {
	var metadata map[string]string
	if len(stat.UserMetadata) > 0 {
		metadata = make(map[string]string, len(stat.UserMetadata))
		for k, v := range stat.UserMetadata {
			metadata[strings.TrimPrefix(strings.ToLower(k), userMetadataPrefix)] = v
		}
	}
	return storage.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
		Metadata:     metadata,
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
