package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"docapi/internal/model"
	"docapi/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

var documentColumns = []string{"id", "filename", "filepath", "filesize", "created_at"}

func TestDocumentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	doc := &model.Document{
		Filename:    "report.pdf",
		StoragePath: "1700000000000-uuid.pdf",
		Size:        10,
		CreatedAt:   now,
	}

	t.Run("success", func(t *testing.T) {
		rows := sqlmock.NewRows(documentColumns).
			AddRow(int64(1), doc.Filename, doc.StoragePath, doc.Size, doc.CreatedAt)

		mock.ExpectQuery("INSERT INTO documents").
			WithArgs(doc.Filename, doc.StoragePath, doc.Size, doc.CreatedAt).
			WillReturnRows(rows)

		result, err := repo.Create(ctx, doc)

		assert.NoError(t, err)
		assert.NotNil(t, result)
		assert.Equal(t, int64(1), result.ID)
		assert.Equal(t, "report.pdf", result.Filename)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate filename", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO documents").
			WithArgs(doc.Filename, doc.StoragePath, doc.Size, doc.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_documents_filename"})

		result, err := repo.Create(ctx, doc)

		assert.ErrorIs(t, err, repository.ErrDuplicateFilename)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage path conflict is not a filename conflict", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO documents").
			WithArgs(doc.Filename, doc.StoragePath, doc.Size, doc.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_filepath_key"})

		_, err := repo.Create(ctx, doc)

		assert.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrDuplicateFilename)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(documentColumns).
			AddRow(int64(7), "file.pdf", "key.pdf", int64(100), time.Now())

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(7)).
			WillReturnRows(rows)

		doc, err := repo.FindByID(ctx, 7)

		assert.NoError(t, err)
		assert.NotNil(t, doc)
		assert.Equal(t, int64(7), doc.ID)
		assert.Equal(t, "key.pdf", doc.StoragePath)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs(int64(404)).
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, 404)

		assert.Error(t, err)
		assert.True(t, IsNoRowsError(err))
		assert.Nil(t, doc)
	})
}

func TestDocumentPostgres_ExistsByFilename(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("report.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("report (1).pdf").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("broken.pdf").
		WillReturnError(errors.New("conn reset"))

	exists, err := repo.ExistsByFilename(ctx, "report.pdf")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByFilename(ctx, "report (1).pdf")
	assert.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.ExistsByFilename(ctx, "broken.pdf")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		newer := time.Now()
		rows := sqlmock.NewRows(documentColumns).
			AddRow(int64(2), "report (1).pdf", "b.pdf", int64(10), newer).
			AddRow(int64(1), "report.pdf", "a.pdf", int64(10), newer.Add(-time.Minute))

		mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY created_at DESC, id DESC").
			WillReturnRows(rows)

		items, err := repo.List(ctx)

		assert.NoError(t, err)
		assert.Len(t, items, 2)
		assert.Equal(t, int64(2), items[0].ID)
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY").
			WillReturnRows(sqlmock.NewRows(documentColumns))

		items, err := repo.List(ctx)

		assert.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY").
			WillReturnError(errors.New("db down"))

		items, err := repo.List(ctx)

		assert.Error(t, err)
		assert.Nil(t, items)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM documents WHERE id = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM documents WHERE id = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(ctx, 1)
	assert.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func IsNoRowsError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
