// Package storage contains the blob store used for uploaded document bytes.
// Keys are server-generated storage names; callers never pass user input as a key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"

	"docapi/internal/config"
)

// ErrObjectNotFound is returned by Get and Delete when no blob exists under the key.
var ErrObjectNotFound = errors.New("object not found")

var tracer = otel.Tracer("docapi/internal/storage")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the blob store interface.
// Methods use context and streaming readers; implementations are safe for concurrent use.
type Storage interface {
	// Put writes the reader's content under key. Keys are expected to be fresh.
	// A failed Put leaves nothing behind under key.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get opens the blob for streaming. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the blob under key.
	Delete(ctx context.Context, key string) error
}

// New builds the blob store selected by cfg.Upload.Backend.
func New(cfg *config.AppConfig) (Storage, error) {
	switch cfg.Upload.Backend {
	case "", config.BlobBackendLocal:
		return NewLocal(cfg.Upload)
	case config.BlobBackendMinIO:
		return NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Upload.Backend)
	}
}
