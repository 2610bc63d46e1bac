// Package models defines core data structures for documents, vector records, and answers.
package models

import "time"

// Document is a catalog entry for an uploaded document.
// ChunkCount always equals the number of vector records carrying ID.
type Document struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type,omitempty" db:"content_type"`
	PageCount   int       `json:"page_count" db:"page_count"`
	ChunkCount  int       `json:"chunk_count" db:"chunk_count"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	SourcePath  string    `json:"source_path,omitempty" db:"source_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Page is the extracted text of one page (1-based). Spreadsheets use one page per sheet.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chunk is a passage produced by the chunker, before embedding.
type Chunk struct {
	Text       string `json:"text"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
}

// DocumentInput is the input for indexing a document.
type DocumentInput struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
	Pages       []Page `json:"pages"`
}
