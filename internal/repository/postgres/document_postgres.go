package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"docapi/internal/model"
	"docapi/internal/repository"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (filename, filepath, filesize, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, filename, filepath, filesize, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.CreatedAt,
	)
	out, err := scanDocument(row)
	if err != nil {
		if isFilenameConflict(err) {
			return nil, repository.ErrDuplicateFilename
		}
		return nil, err
	}
	return out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id int64) (*model.Document, error) {
	const q = `
		SELECT id, filename, filepath, filesize, created_at
		FROM documents
		WHERE id = $1
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// ExistsByFilename checks whether a document with the display name exists.
func (r *DocumentPostgres) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM documents WHERE filename = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, filename).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// List returns every document, most recent first.
func (r *DocumentPostgres) List(ctx context.Context) ([]model.Document, error) {
	const q = `
		SELECT id, filename, filepath, filesize, created_at
		FROM documents
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a document by ID. It reports false when no row matched.
func (r *DocumentPostgres) Delete(ctx context.Context, id int64) (bool, error) {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var d model.Document
	if err := s.Scan(
		&d.ID,
		&d.Filename,
		&d.StoragePath,
		&d.Size,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func isFilenameConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	// A clash on filepath is a storage-name collision, not a display-name one.
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == "idx_documents_filename"
}
