// Package vector provides the in-memory vector index and the manager that owns it.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Index is the underlying searchable structure over vector records.
// It supports appends and full enumeration but no in-place removal; deletion
// is done by building a new Index from the remaining records.
type Index interface {
	// Add appends records. Either every record is added or none is.
	Add(ctx context.Context, records []models.VectorRecord) error
	// Search returns up to k hits ordered by ascending distance, ties by insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// All returns every stored record in insertion order.
	All() []models.VectorRecord
	Size() int
	Dimensions() int
	Metric() Metric
	Close() error
}

// Hit is a single search hit.
type Hit struct {
	Record   models.VectorRecord
	Distance float64
}
