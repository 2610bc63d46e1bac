package models

import (
	"fmt"
	"math"
)

// VectorRecord is the unit of storage in the vector index. Records are never
// mutated after creation; deleting a document removes whole records.
type VectorRecord struct {
	Vector     []float32 `json:"-"`
	Text       string    `json:"text"`
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
}

// Validate checks the record invariants: non-empty document id, a non-empty
// vector of finite components, page >= 1, chunk index >= 0.
func (r *VectorRecord) Validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("%w: record has empty document id", ErrInvalidArgument)
	}
	if r.Page < 1 {
		return fmt.Errorf("%w: record %s#%d has page %d, want >= 1", ErrInvalidArgument, r.DocumentID, r.ChunkIndex, r.Page)
	}
	if r.ChunkIndex < 0 {
		return fmt.Errorf("%w: record %s has negative chunk index %d", ErrInvalidArgument, r.DocumentID, r.ChunkIndex)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: record %s#%d has empty vector", ErrInvalidArgument, r.DocumentID, r.ChunkIndex)
	}
	if i, ok := FiniteVector(r.Vector); !ok {
		return fmt.Errorf("%w: record %s#%d has non-finite vector component at %d", ErrInvalidArgument, r.DocumentID, r.ChunkIndex, i)
	}
	return nil
}

// FiniteVector reports whether every component of v is finite. When it is
// not, the index of the first NaN or Inf component is returned.
func FiniteVector(v []float32) (int, bool) {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, false
		}
	}
	return -1, true
}

// RetrievalResult holds records ordered by descending similarity with parallel scores.
type RetrievalResult struct {
	Records []VectorRecord `json:"records"`
	Scores  []float64      `json:"scores"`
}

// Len returns the number of records in the result.
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// Empty reports whether the result holds no records.
func (r *RetrievalResult) Empty() bool {
	return r.Len() == 0
}
