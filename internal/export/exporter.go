// Package export turns a normalized query result into a CSV or Parquet object in
// the configured object store.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/query"
	"github.com/querydesk/querydesk/internal/storage"
)

// Metadata keys stored alongside every export object.
const (
	MetadataFormat  = "querydesk-format"
	MetadataColumns = "querydesk-columns"
	MetadataRows    = "querydesk-rows"
)

type Object struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Columns     int       `json:"columns"`
	Rows        int       `json:"rows"`
	ETag        string    `json:"etag,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Exporter struct {
	Store storage.ObjectStore
	// LinkTTL enables presigned download links when the store supports them.
	LinkTTL time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

func NewExporter(store storage.ObjectStore) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Exporter{Store: store}, nil
}

func (e *Exporter) Export(ctx context.Context, result query.Result, format Format) (Object, error) {
	data, err := Encode(result, format)
	if err != nil {
		observability.ObserveExport(string(format), observability.OutcomeError, 0)
		return Object{}, err
	}

	createdAt := e.now()
	key, err := storage.BuildExportPath(createdAt, e.newID(), format.Extension())
	if err != nil {
		observability.ObserveExport(string(format), observability.OutcomeError, 0)
		return Object{}, fmt.Errorf("build export key: %w", err)
	}

	info, err := e.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			MetadataFormat:  string(format),
			MetadataColumns: strconv.Itoa(len(result.Columns)),
			MetadataRows:    strconv.Itoa(len(result.Rows)),
		},
	})
	if err != nil {
		observability.ObserveExport(string(format), observability.OutcomeError, 0)
		return Object{}, fmt.Errorf("upload export: %w", err)
	}
	observability.ObserveExport(string(format), observability.OutcomeSuccess, int64(len(data)))

	return Object{
		Key:         key,
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(data)),
		Columns:     len(result.Columns),
		Rows:        len(result.Rows),
		ETag:        info.ETag,
		DownloadURL: e.downloadURL(ctx, key),
		CreatedAt:   createdAt,
	}, nil
}

// downloadURL is best effort: the export is already stored and stays reachable
// through the API when presigning fails.
func (e *Exporter) downloadURL(ctx context.Context, key string) string {
	presigner, ok := e.Store.(storage.Presigner)
	if !ok || e.LinkTTL <= 0 {
		return ""
	}
	link, err := presigner.PresignGet(ctx, key, e.LinkTTL)
	if err != nil {
		observability.FromContext(ctx, e.Logger).WarnContext(ctx, "presign export failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return ""
	}
	return link
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Exporter) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}
