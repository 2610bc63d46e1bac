// Package indexer ingests documents: extraction, chunking, embedding, the
// vector index, the catalog, and catalog search are updated together.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// maxKeywordContent bounds the text stored per document in catalog search.
const maxKeywordContent = 200000

// Indexer keeps the vector index, catalog, and catalog search consistent.
// Operations on the same document id are serialized; the catalog chunk count
// always equals the index record count for a registered document.
type Indexer struct {
	catalog      storage.Catalog
	embedder     embedding.Embedder
	index        *vector.Manager
	keywordIndex keyword.KeywordIndex
	chunker      *Chunker
	extractor    *extract.Extractor
	locks        *keyedMutex
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
// keywordIndex may be nil to disable catalog search.
func NewIndexer(
	catalog storage.Catalog,
	embedder embedding.Embedder,
	index *vector.Manager,
	keywordIndex keyword.KeywordIndex,
	cfg config.ChunkingConfig,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		catalog:      catalog,
		embedder:     embedder,
		index:        index,
		keywordIndex: keywordIndex,
		chunker:      NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor:    extractor,
		locks:        newKeyedMutex(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDocument chunks, embeds, and registers a new document. A missing id
// gets a random UUID; an id already in the catalog is models.ErrConflict.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	input, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	unlock := idx.locks.Lock(input.ID)
	defer unlock()

	if _, err := idx.catalog.GetDocument(ctx, input.ID); err == nil {
		return nil, fmt.Errorf("%w: document %s already registered", models.ErrConflict, input.ID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("check catalog: %w", err)
	}
	return idx.indexLocked(ctx, input)
}

// ReplaceDocument indexes input, first deleting any document with the same id.
func (idx *Indexer) ReplaceDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	input, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	if input.ID == "" {
		return nil, fmt.Errorf("%w: replace requires a document id", models.ErrInvalidArgument)
	}
	unlock := idx.locks.Lock(input.ID)
	defer unlock()

	if _, err := idx.deleteLocked(ctx, input.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("replace %s: %w", input.ID, err)
	}
	return idx.indexLocked(ctx, input)
}

// validateInput returns a trimmed copy of input.
func validateInput(input *models.DocumentInput) (*models.DocumentInput, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: nil document", models.ErrInvalidArgument)
	}
	in := *input
	in.ID = strings.TrimSpace(in.ID)
	in.Filename = strings.TrimSpace(in.Filename)
	if in.Filename == "" {
		return nil, fmt.Errorf("%w: filename cannot be empty", models.ErrInvalidArgument)
	}
	if len(in.Pages) == 0 {
		return nil, fmt.Errorf("%w: document %q has no pages", models.ErrInvalidArgument, in.Filename)
	}
	for _, p := range in.Pages {
		if p.Number < 1 {
			return nil, fmt.Errorf("%w: page number %d, want >= 1", models.ErrInvalidArgument, p.Number)
		}
	}
	return &in, nil
}

func (idx *Indexer) indexLocked(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	start := time.Now()
	pages := make([]models.Page, 0, len(input.Pages))
	for _, p := range input.Pages {
		if text := Preprocess(p.Text); text != "" {
			pages = append(pages, models.Page{Number: p.Number, Text: text})
		}
	}
	chunks := idx.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %q has no text", models.ErrInvalidArgument, input.Filename)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbeddingUnavailable, len(embeddings), len(chunks))
	}

	records := make([]models.VectorRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = models.VectorRecord{
			Vector:     embeddings[i],
			Text:       ch.Text,
			DocumentID: input.ID,
			Page:       ch.Page,
			ChunkIndex: ch.ChunkIndex,
		}
	}
	if err := idx.index.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}

	doc := &models.Document{
		ID:          input.ID,
		Filename:    input.Filename,
		ContentType: input.ContentType,
		PageCount:   len(input.Pages),
		ChunkCount:  len(chunks),
		SizeBytes:   input.SizeBytes,
		SourcePath:  input.SourcePath,
	}
	if err := idx.catalog.RegisterDocument(ctx, doc); err != nil {
		if _, rbErr := idx.index.DeleteByDocument(context.WithoutCancel(ctx), input.ID); rbErr != nil {
			idx.logger.Error("failed to roll back vectors after catalog error",
				zap.String("id", input.ID), zap.Error(rbErr))
		}
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	if idx.keywordIndex != nil {
		entry := &keyword.Entry{
			Title:       input.Filename,
			Content:     utils.Truncate(joinPages(pages), maxKeywordContent),
			ContentType: input.ContentType,
		}
		if err := idx.keywordIndex.Index(ctx, doc.ID, entry); err != nil {
			idx.logger.Warn("catalog search indexing failed", zap.String("id", doc.ID), zap.Error(err))
		}
	}

	idx.logger.Debug("indexer document indexed",
		zap.String("id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("pages", doc.PageCount),
		zap.Int("chunks", doc.ChunkCount),
		zap.Duration("duration", time.Since(start)))
	return doc, nil
}

func joinPages(pages []models.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n")
}

// IndexUpload extracts content by the filename's extension and indexes it as a new document.
func (idx *Indexer) IndexUpload(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	pages, err := idx.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	return idx.IndexDocument(ctx, &models.DocumentInput{
		Filename:    filepath.Base(filename),
		ContentType: extract.ContentType(ext),
		SizeBytes:   int64(len(content)),
		Pages:       pages,
	})
}

// IndexFile reads a file from path and indexes it. The document ID is derived from the
// absolute path so re-indexing replaces the same document. If allowedExts is non-empty,
// the file's extension must be in the list (case-insensitive).
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (*models.Document, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", models.ErrInvalidArgument, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidArgument, absPath)
	}
	pages, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	return idx.ReplaceDocument(ctx, &models.DocumentInput{
		ID:          fileid.FileDocID(absPath),
		Filename:    filepath.Base(absPath),
		ContentType: extract.ContentType(ext),
		SizeBytes:   info.Size(),
		SourcePath:  absPath,
		Pages:       pages,
	})
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (if non-empty; otherwise every supported file). Files that fail
// are logged and skipped. Returns the number of files indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if len(allowedExts) == 0 && !extract.Supported(ext) {
			return nil
		}
		if _, err := idx.IndexFile(ctx, path, allowedExts); err != nil {
			idx.logger.Warn("indexer skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// DeleteDocument removes a document from the index, catalog, and catalog search.
// Returns the number of vector records removed; an unknown id is models.ErrNotFound.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) (int, error) {
	unlock := idx.locks.Lock(id)
	defer unlock()
	return idx.deleteLocked(ctx, id)
}

// DeleteFile removes the document indexed from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n, err := idx.DeleteDocument(ctx, fileid.FileDocID(absPath))
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

func (idx *Indexer) deleteLocked(ctx context.Context, id string) (int, error) {
	if _, err := idx.catalog.GetDocument(ctx, id); err != nil {
		return 0, err
	}
	removed, err := idx.index.DeleteByDocument(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.catalog.UnregisterDocument(ctx, id); err != nil {
		return removed, fmt.Errorf("failed to unregister document: %w", err)
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Delete(ctx, id); err != nil {
			idx.logger.Warn("catalog search delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	idx.logger.Debug("indexer document deleted", zap.String("id", id), zap.Int("removed", removed))
	return removed, nil
}

// Reconcile unregisters catalog documents whose record count in the index
// does not match, which after a restart is every document since the vector
// index lives in memory. Returns the number of documents unregistered.
func (idx *Indexer) Reconcile(ctx context.Context) (int, error) {
	ids, err := idx.catalog.ListDocumentIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	counts := idx.index.DocumentCounts()
	var stale []string
	for _, id := range ids {
		doc, err := idx.catalog.GetDocument(ctx, id)
		if err != nil {
			continue
		}
		if counts[id] != doc.ChunkCount {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if _, err := idx.index.DeleteByDocuments(ctx, stale); err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	n := 0
	for _, id := range stale {
		unlock := idx.locks.Lock(id)
		err := idx.catalog.UnregisterDocument(ctx, id)
		if idx.keywordIndex != nil {
			if kwErr := idx.keywordIndex.Delete(ctx, id); kwErr != nil {
				idx.logger.Warn("catalog search delete failed", zap.String("id", id), zap.Error(kwErr))
			}
		}
		unlock()
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return n, fmt.Errorf("reconcile: %w", err)
		}
		n++
	}
	idx.logger.Info("reconciled catalog with vector index", zap.Int("unregistered", n))
	return n, nil
}
