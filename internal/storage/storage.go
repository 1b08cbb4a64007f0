// Package storage defines the object store contract used for exported query
// results and the key layout those exports live under.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored export. Metadata keys are lower case.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore keeps export objects. Get and Delete return ErrObjectNotFound for
// keys that do not exist.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out time-limited download
// links for an object.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
