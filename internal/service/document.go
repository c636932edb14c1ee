package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"docapi/internal/config"
	"docapi/internal/model"
	"docapi/internal/naming"
	"docapi/internal/repository"
	"docapi/internal/storage"
)

var (
	ErrReaderNil       = errors.New("reader is nil")
	ErrInvalidID       = errors.New("invalid document id")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNotFound        = errors.New("document not found")
	// ErrBlobMissing means the record exists but its bytes do not. It matches ErrNotFound.
	ErrBlobMissing   = fmt.Errorf("%w: file missing from blob store", ErrNotFound)
	ErrStorage       = errors.New("storage error")
	ErrMetadata      = errors.New("metadata error")
	ErrDuplicateFile = repository.ErrDuplicateFilename
)

// maxCreateAttempts bounds how often an upload re-resolves its display name
// after losing a race for it to a concurrent upload.
const maxCreateAttempts = 5

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload stores the content under a generated storage name, resolves a unique display
	// name from originalFilename, and saves the record. The blob is removed if the record
	// cannot be saved.
	Upload(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64) (*model.Document, error)

	// List returns every document, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// Download returns the record and an open stream of its bytes. The caller must close the stream.
	Download(ctx context.Context, id int64) (*model.Document, io.ReadCloser, error)

	// Delete removes a document's blob and record. It reports whether a record was removed.
	Delete(ctx context.Context, id int64) (bool, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	resolver *naming.Resolver
	cfg      config.UploadConfig
	now      func() time.Time
}

// NewDocumentService constructs a new DocumentService.
// Zero-valued upload limits fall back to the PDF defaults.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, cfg config.UploadConfig) DocumentService {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if cfg.ContentType == "" {
		cfg.ContentType = config.PDFContentType
	}
	if cfg.Extension == "" {
		cfg.Extension = config.PDFExtension
	}
	return &documentService{
		store:    store,
		repo:     repo,
		resolver: naming.NewResolver(repo),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *documentService) Upload(ctx context.Context, r io.Reader, originalFilename string, contentType string, size int64) (doc *model.Document, err error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if err := s.validate(originalFilename, contentType, size); err != nil {
		return nil, err
	}

	key := naming.StorageName(originalFilename, s.now())
	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	// Read one byte past the limit so an understated size is still caught.
	info, err := s.store.Put(ctx, key, io.LimitReader(r, s.cfg.MaxFileSize+1), storage.PutObjectOptions{
		Size:        putSize,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": originalFilename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upload to storage: %w", ErrStorage, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback: the blob must not outlive a failed upload, even if the request was cancelled.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil && !errors.Is(delErr, storage.ErrObjectNotFound) {
			err = fmt.Errorf("%w; rollback delete failed: %v", err, delErr)
		}
	}()

	if info.Size > s.cfg.MaxFileSize {
		return nil, ErrFileTooLarge
	}

	stored, err := s.create(ctx, originalFilename, key, info.Size)
	if err != nil {
		return nil, err
	}
	committed = true
	return stored, nil
}

// create resolves the display name and inserts the record, retrying when a
// concurrent upload claims the same name between resolution and insert.
func (s *documentService) create(ctx context.Context, desired, key string, size int64) (*model.Document, error) {
	for attempt := 1; ; attempt++ {
		name, err := s.resolver.Resolve(ctx, desired)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve filename: %w", ErrMetadata, err)
		}

		stored, err := s.repo.Create(ctx, &model.Document{
			Filename:    name,
			StoragePath: key,
			Size:        size,
			CreatedAt:   s.now().UTC(),
		})
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, repository.ErrDuplicateFilename) {
			return nil, fmt.Errorf("%w: db save failed: %w", ErrMetadata, err)
		}
		if attempt >= maxCreateAttempts {
			return nil, fmt.Errorf("filename %q after %d attempts: %w", desired, attempt, err)
		}
	}
}

func (s *documentService) validate(filename, contentType string, size int64) error {
	if strings.ToLower(filepath.Ext(filename)) != s.cfg.Extension {
		return ErrInvalidFileType
	}
	if !strings.EqualFold(contentType, s.cfg.ContentType) {
		return ErrInvalidFileType
	}
	if size > s.cfg.MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// List returns all documents ordered by creation time, newest first.
func (s *documentService) List(ctx context.Context) ([]model.Document, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrMetadata, err)
	}
	return items, nil
}

// Download opens the blob of a document. A record without a blob yields ErrBlobMissing.
func (s *documentService) Download(ctx context.Context, id int64) (*model.Document, io.ReadCloser, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, info, err := s.store.Get(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, ErrBlobMissing
		}
		return nil, nil, fmt.Errorf("%w: open blob: %w", ErrStorage, err)
	}
	if info.Size != doc.Size {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("%w: blob size %d does not match record size %d", ErrStorage, info.Size, doc.Size)
	}
	return doc, rc, nil
}

// Delete removes a document from storage, then deletes its record.
// A blob that is already gone does not block removing the record.
func (s *documentService) Delete(ctx context.Context, id int64) (bool, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return false, err
	}

	if err := s.store.Delete(ctx, doc.StoragePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return false, fmt.Errorf("%w: delete storage: %w", ErrStorage, err)
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete record: %w", ErrMetadata, err)
	}
	if !deleted {
		return false, fmt.Errorf("%w: record %d was already removed", ErrMetadata, id)
	}
	return true, nil
}

func (s *documentService) find(ctx context.Context, id int64) (*model.Document, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find document: %w", ErrMetadata, err)
	}
	return doc, nil
}
