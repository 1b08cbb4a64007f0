// Package s3 stores exported query results in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("s3 endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// bucketAPI is the slice of the S3 API the store needs, scoped to one bucket.
type bucketAPI interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	StatObject(ctx context.Context, key string) (storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	PresignGetObject(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, region string) error
}

// Store keeps export objects under an optional key prefix. Keys handed in and
// out are always relative to that prefix.
type Store struct {
	api    bucketAPI
	name   string
	prefix string
}

var (
	_ storage.ObjectStore = (*Store)(nil)
	_ storage.Presigner   = (*Store)(nil)
)

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	api, err := dialMinio(cfg)
	if err != nil {
		return nil, err
	}
	store := newStore(strings.TrimSpace(cfg.Bucket), cfg.Prefix, api)
	if !cfg.AutoCreateBucket {
		return store, nil
	}
	if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(bucket, prefix string, api bucketAPI) *Store {
	return &Store{api: api, name: bucket, prefix: cleanPrefix(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.PutObject(ctx, objectKey, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s to bucket %s: %w", objectKey, s.name, err)
	}
	info.Key = key
	info.ContentType = opts.ContentType
	info.Metadata = lowerKeys(opts.Metadata)
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	body, info, err := s.api.GetObject(ctx, objectKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	case err != nil:
		return nil, storage.ObjectInfo{}, fmt.Errorf("download %s from bucket %s: %w", objectKey, s.name, err)
	}
	info.Key = key
	info.Metadata = lowerKeys(info.Metadata)
	return body, info, nil
}

// Delete removes an export. S3 deletes are idempotent, so the object is looked
// up first to report missing exports.
func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.api.StatObject(ctx, objectKey); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ErrObjectNotFound
		}
		return fmt.Errorf("stat %s in bucket %s: %w", objectKey, s.name, err)
	}
	if err := s.api.RemoveObject(ctx, objectKey); err != nil {
		return fmt.Errorf("remove %s from bucket %s: %w", objectKey, s.name, err)
	}
	return nil
}

func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("presign ttl must be positive")
	}
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	link, err := s.api.PresignGetObject(ctx, objectKey, ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s in bucket %s: %w", objectKey, s.name, err)
	}
	return link, nil
}

// HealthCheck fails unless the configured bucket is reachable and exists.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.api.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.name, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.name)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.name, err)
	}
	if exists {
		return nil
	}
	if err := s.api.Create(ctx, region); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.name, err)
	}
	return nil
}

// objectKey maps a caller key to the bucket key, refusing anything that would
// climb out of the prefix.
func (s *Store) objectKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimLeft(key, "/"))
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return path.Join(s.prefix, cleaned), nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	if cleaned := path.Clean(prefix); cleaned != "." {
		return cleaned
	}
	return ""
}

func lowerKeys(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
