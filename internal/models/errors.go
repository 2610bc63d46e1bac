package models

import "errors"

// Error kinds shared across the index, pipeline, and HTTP layers. Callers wrap
// them with context and match with errors.Is.
var (
	// ErrEmbeddingUnavailable means the embedding provider is not configured or the call failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrGenerationUnavailable means the answer generation model failed.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrIndexBuildFailed means constructing the vector index failed; the previous index is still live.
	ErrIndexBuildFailed = errors.New("index build failed")
	// ErrInvalidArgument is returned before any side effect for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for unknown document ids.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a document id is already registered.
	ErrConflict = errors.New("conflict")
)

// IsServiceUnavailable reports whether err comes from an AI provider (embedding or generation).
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrGenerationUnavailable)
}
