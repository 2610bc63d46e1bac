package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force exact search.
type MemoryIndex struct {
	dimensions int
	metric     Metric
	records    []models.VectorRecord
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index with the given dimension and metric.
func NewMemoryIndex(dimensions int, metric Metric) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}
	return &MemoryIndex{
		dimensions: dimensions,
		metric:     metric,
		records:    make([]models.VectorRecord, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add appends records. All dimensions are checked before anything is appended.
func (m *MemoryIndex) Add(ctx context.Context, records []models.VectorRecord) error {
	for i := range records {
		if len(records[i].Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(records[i].Vector), m.dimensions)
		}
	}
	copied := make([]models.VectorRecord, len(records))
	for i, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Vector)
		r.Vector = vec
		copied[i] = r
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, copied...)
	return nil
}

// Search returns the k nearest records. Hit records share vector memory with
// the index; Manager.Search copies them before they leave the package.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(m.records))
	for i := range m.records {
		hits[i] = Hit{Record: m.records[i], Distance: m.metric.Distance(query, m.records[i].Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k], nil
}

// All returns a snapshot of every record in insertion order.
func (m *MemoryIndex) All() []models.VectorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.VectorRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Metric returns the distance metric.
func (m *MemoryIndex) Metric() Metric {
	return m.metric
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
