package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docapi/internal/config"
	"docapi/internal/model"
	"docapi/internal/repository"
	"docapi/internal/storage"
)

// memRepo is an in-memory DocumentRepository with a unique filename constraint.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	docs      map[int64]model.Document
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{docs: map[int64]model.Document{}}
}

func (m *memRepo) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, d := range m.docs {
		if d.Filename == doc.Filename {
			return nil, repository.ErrDuplicateFilename
		}
	}
	m.nextID++
	out := *doc
	out.ID = m.nextID
	m.docs[out.ID] = out
	return &out, nil
}

func (m *memRepo) FindByID(_ context.Context, id int64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *memRepo) ExistsByFilename(_ context.Context, filename string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) List(_ context.Context) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

// recordingStore remembers the keys handed to Put.
type recordingStore struct {
	storage.Storage
	mu   sync.Mutex
	keys []string
}

func (r *recordingStore) Put(ctx context.Context, key string, rd io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Storage.Put(ctx, key, rd, opt)
}

type flowFixture struct {
	fs    afero.Fs
	repo  *memRepo
	store *recordingStore
	svc   DocumentService
}

func newFlowFixture(maxSize int64) *flowFixture {
	fs := afero.NewMemMapFs()
	repo := newMemRepo()
	store := &recordingStore{Storage: storage.NewLocalFs(fs)}

	svc := NewDocumentService(store, repo, config.UploadConfig{MaxFileSize: maxSize}).(*documentService)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return &flowFixture{fs: fs, repo: repo, store: store, svc: svc}
}

func (f *flowFixture) upload(t *testing.T, name string, content []byte) *model.Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), bytes.NewReader(content), name, config.PDFContentType, int64(len(content)))
	require.NoError(t, err)
	return doc
}

func TestDocumentFlow_UploadListDownloadDelete(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(1024)
	content := []byte("%PDF-1.4\n\n")

	first := f.upload(t, "report.pdf", content)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "report.pdf", first.Filename)
	assert.Equal(t, int64(10), first.Size)

	second := f.upload(t, "report.pdf", content)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "report (1).pdf", second.Filename)
	assert.NotEqual(t, first.StoragePath, second.StoragePath)

	items, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ID)
	assert.Equal(t, int64(1), items[1].ID)

	doc, rc, err := f.svc.Download(ctx, first.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)
	assert.Equal(t, "report.pdf", doc.Filename)

	deleted, err := f.svc.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := afero.Exists(f.fs, first.StoragePath)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = f.svc.Download(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Delete(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The freed name is reused by the next upload.
	third := f.upload(t, "report.pdf", content)
	assert.Equal(t, "report.pdf", third.Filename)
}

func TestDocumentFlow_SequentialNamesAreDistinct(t *testing.T) {
	f := newFlowFixture(1024)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		doc := f.upload(t, "scan.pdf", []byte("x"))
		assert.False(t, seen[doc.Filename], doc.Filename)
		seen[doc.Filename] = true
	}
	for _, want := range []string{"scan.pdf", "scan (1).pdf", "scan (2).pdf", "scan (3).pdf"} {
		assert.True(t, seen[want], want)
	}
}

func TestDocumentFlow_ConcurrentUploadsGetDistinctNames(t *testing.T) {
	f := newFlowFixture(1024)
	const n = 8

	var wg sync.WaitGroup
	names := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := f.svc.Upload(context.Background(), bytes.NewReader([]byte("x")), "same.pdf", config.PDFContentType, 1)
			errs[i] = err
			if err == nil {
				names[i] = doc.Filename
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	stored := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			// Only an exhausted retry budget may fail, and it must leave no blob behind.
			assert.ErrorIs(t, errs[i], ErrDuplicateFile)
			continue
		}
		stored++
		assert.False(t, seen[names[i]], names[i])
		seen[names[i]] = true
	}

	items, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, stored)

	blobs := 0
	for _, key := range f.store.keys {
		ok, err := afero.Exists(f.fs, key)
		require.NoError(t, err)
		if ok {
			blobs++
		}
	}
	assert.Equal(t, stored, blobs)
}

func TestDocumentFlow_FailedInsertLeavesNoBlob(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(1024)
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.Upload(ctx, bytes.NewReader([]byte("%PDF")), "a.pdf", config.PDFContentType, 4)
	require.ErrorIs(t, err, ErrMetadata)

	require.Len(t, f.store.keys, 1)
	exists, err := afero.Exists(f.fs, f.store.keys[0])
	require.NoError(t, err)
	assert.False(t, exists)

	items, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDocumentFlow_RejectedUploadsWriteNothing(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(8)

	cases := []struct {
		name        string
		contentType string
		content     []byte
		declared    int64
		wantErr     error
	}{
		{name: "notes.txt", contentType: config.PDFContentType, content: []byte("x"), declared: 1, wantErr: ErrInvalidFileType},
		{name: "a.pdf", contentType: "image/png", content: []byte("x"), declared: 1, wantErr: ErrInvalidFileType},
		{name: "a.pdf", contentType: config.PDFContentType, content: make([]byte, 9), declared: 9, wantErr: ErrFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s %s", tc.name, tc.contentType), func(t *testing.T) {
			_, err := f.svc.Upload(ctx, bytes.NewReader(tc.content), tc.name, tc.contentType, tc.declared)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Empty(t, f.store.keys)
	items, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDocumentFlow_UnderstatedSizeIsCaught(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(8)

	_, err := f.svc.Upload(ctx, bytes.NewReader(make([]byte, 32)), "big.pdf", config.PDFContentType, 4)
	require.ErrorIs(t, err, ErrFileTooLarge)

	require.Len(t, f.store.keys, 1)
	exists, err := afero.Exists(f.fs, f.store.keys[0])
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocumentFlow_BoundarySizeIsAccepted(t *testing.T) {
	f := newFlowFixture(8)

	doc := f.upload(t, "edge.pdf", make([]byte, 8))

	assert.Equal(t, int64(8), doc.Size)
}

func TestDocumentFlow_MissingBlob(t *testing.T) {
	ctx := context.Background()
	f := newFlowFixture(1024)
	doc := f.upload(t, "gone.pdf", []byte("%PDF"))

	require.NoError(t, f.fs.Remove(doc.StoragePath))

	_, _, err := f.svc.Download(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrBlobMissing)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := f.svc.Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}
