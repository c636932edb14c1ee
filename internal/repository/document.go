package repository

import (
	"context"
	"errors"

	"docapi/internal/model"
)

// ErrDuplicateFilename is returned by Create when another record already holds the display name.
var ErrDuplicateFilename = errors.New("duplicate filename")

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here, strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record. ID is assigned by the store and
	// returned in the stored document. Returns ErrDuplicateFilename when the
	// filename is already taken.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// ExistsByFilename reports whether a record with the given display name exists.
	ExistsByFilename(ctx context.Context, filename string) (bool, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// Delete removes a document by ID and reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
}
