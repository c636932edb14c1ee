package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docapi/internal/config"
)

// localStorage implements Storage on a directory, one file per key.
// The filesystem is rooted at the upload directory so keys cannot escape it.
type localStorage struct {
	fs afero.Fs
}

// NewLocal creates a filesystem-backed Storage rooted at cfg.Dir, creating the directory if needed.
func NewLocal(cfg config.UploadConfig) (Storage, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return NewLocalFs(afero.NewBasePathFs(osFs, cfg.Dir)), nil
}

// NewLocalFs creates a Storage on an existing afero filesystem.
func NewLocalFs(fs afero.Fs) Storage {
	return &localStorage{fs: fs}
}

// Put writes r to a new file named key. Existing files are never overwritten.
func (l *localStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "localfs.put", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()

	if err := validateKey(key); err != nil {
		span.RecordError(err)
		return ObjectInfo{}, err
	}

	f, err := l.fs.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		span.RecordError(err)
		return ObjectInfo{}, fmt.Errorf("create blob: %w", err)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Remove the partial file so a failed write leaves no orphan.
		_ = l.fs.Remove(key)
		span.RecordError(err)
		return ObjectInfo{}, fmt.Errorf("write blob: %w", err)
	}

	span.SetAttributes(attribute.Int64("blob.size", n))
	info := ObjectInfo{
		Key:         key,
		Size:        n,
		ContentType: opt.ContentType,
		Metadata:    opt.Metadata,
	}
	if st, err := l.fs.Stat(key); err == nil {
		info.LastModified = st.ModTime()
	}
	return info, nil
}

// Get opens key for reading. A missing file is reported as ErrObjectNotFound.
func (l *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	_, span := tracer.Start(ctx, "localfs.get", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()

	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}

	// Open once and stat the handle; no separate existence check.
	f, err := l.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		span.RecordError(err)
		return nil, ObjectInfo{}, fmt.Errorf("open blob: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		span.RecordError(err)
		return nil, ObjectInfo{}, fmt.Errorf("stat blob: %w", err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}

	span.SetAttributes(attribute.Bool("found", true), attribute.Int64("blob.size", st.Size()))
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

// Delete removes key. A missing file is reported as ErrObjectNotFound.
func (l *localStorage) Delete(ctx context.Context, key string) error {
	_, span := tracer.Start(ctx, "localfs.delete", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrObjectNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

// ctxReader stops a copy once the request context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
