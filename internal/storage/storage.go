// Package storage persists the document catalog.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Catalog tracks document-level metadata. A document's ChunkCount must equal
// the number of vector records the index holds for it.
type Catalog interface {
	// RegisterDocument inserts doc; an existing id is models.ErrConflict.
	RegisterDocument(ctx context.Context, doc *models.Document) error
	// UnregisterDocument removes id; an unknown id is models.ErrNotFound.
	UnregisterDocument(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	DocumentName(ctx context.Context, id string) (string, bool)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
