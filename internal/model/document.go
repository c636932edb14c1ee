package model

import "time"

// Document represents a stored PDF in the system.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
//
// Filename is the display name shown to clients and is unique among live records.
// StoragePath is the server-generated key of the bytes in the blob store.
type Document struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"filepath"`
	Size        int64     `json:"filesize"`
	CreatedAt   time.Time `json:"created_at"`
}
