package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search.
	IndexTypeMemory IndexType = "memory"
)

// Builder constructs a fully populated Index from records. It must not retain
// or mutate records after returning.
type Builder func(ctx context.Context, dimensions int, metric Metric, records []models.VectorRecord) (Index, error)

// NewBuilder returns the Builder for the named index type.
// Supported types: "memory" (default).
func NewBuilder(indexType string) (Builder, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return BuildMemoryIndex, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory)", indexType)
	}
}

// BuildMemoryIndex builds a MemoryIndex holding records.
func BuildMemoryIndex(ctx context.Context, dimensions int, metric Metric, records []models.VectorRecord) (Index, error) {
	idx, err := NewMemoryIndex(dimensions, metric)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, records); err != nil {
		return nil, err
	}
	return idx, nil
}
