package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 500
	defaultSearchLimit = 10
)

// UploadResponse is returned after a document is ingested.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
}

// DeleteResponse reports how many vector records a delete removed.
type DeleteResponse struct {
	ID      string `json:"id"`
	Removed int    `json:"removed"`
}

// RetrieveRequest asks for the passages a question would be answered from.
type RetrieveRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// RetrieveResponse lists retrieved passages, best first.
type RetrieveResponse struct {
	Passages []models.Passage `json:"passages"`
}

// DocumentList is one page of the catalog.
type DocumentList struct {
	Documents []*models.Document `json:"documents"`
	Total     int64              `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
}

// SearchHit is a catalog search match.
type SearchHit struct {
	Document *models.Document `json:"document"`
	Score    float64          `json:"score"`
}

// StatusResponse describes the server's catalog, index, and configuration.
type StatusResponse struct {
	Documents      int64        `json:"documents"`
	Chunks         int64        `json:"chunks"`
	VectorRecords  int          `json:"vector_records"`
	IndexState     string       `json:"index_state"`
	IndexBuilds    uint64       `json:"index_builds"`
	DiskUsageBytes int64        `json:"disk_usage_bytes,omitempty"`
	Uptime         string       `json:"uptime"`
	Watch          *WatchStatus `json:"watch,omitempty"`
	Config         StatusConfig `json:"config"`
}

// WatchStatus is the inbox watcher section of StatusResponse.
type WatchStatus struct {
	Directories []string `json:"directories"`
	Indexed     int64    `json:"indexed"`
	Failed      int64    `json:"failed"`
	Removed     int64    `json:"removed"`
}

// StatusConfig echoes the settings that shape retrieval.
type StatusConfig struct {
	Metric              string `json:"metric"`
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	GenerationProvider  string `json:"generation_provider"`
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	DefaultK            int    `json:"default_k"`
	MaxK                int    `json:"max_k"`
	DatabasePath        string `json:"database_path"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if statusFor(err) == http.StatusRequestEntityTooLarge {
			s.fail(w, "upload too large", err)
			return
		}
		s.respondError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, "read upload failed", err)
		return
	}
	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int("bytes", len(content)))

	doc, err := s.indexer.IndexUpload(r.Context(), header.Filename, content)
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, UploadResponse{
		ID:       doc.ID,
		Filename: doc.Filename,
		Pages:    doc.PageCount,
		Chunks:   doc.ChunkCount,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	ctx := r.Context()
	docs, err := s.catalog.ListDocuments(ctx, offset, limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	total, err := s.catalog.CountDocuments(ctx)
	if err != nil {
		s.fail(w, "count documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, DocumentList{Documents: docs, Total: total, Offset: offset, Limit: limit})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", models.ErrInvalidArgument, name)
	}
	return n, nil
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	if s.keywords == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog search not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		s.fail(w, "search documents", err)
		return
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	ctx := r.Context()
	results, err := s.keywords.Search(ctx, q, limit, &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		s.fail(w, "catalog search failed", err)
		return
	}
	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		doc, err := s.catalog.GetDocument(ctx, res.ID)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{Document: doc, Score: res.Score})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "results": hits})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.catalog.GetDocument(r.Context(), id)
	if err != nil {
		s.fail(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	removed, err := s.indexer.DeleteDocument(r.Context(), id)
	if err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, DeleteResponse{ID: id, Removed: removed})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("chat request", zap.String("question", req.Question), zap.Int("k", req.K))
	resp, err := s.pipeline.Answer(r.Context(), req)
	if err != nil {
		if resp != nil && len(resp.Sources) > 0 {
			s.logger.Warn("answer failed after retrieval",
				zap.Int("sources", len(resp.Sources)),
				zap.Strings("documents", sourceDocuments(resp.Sources)))
		}
		s.fail(w, "answer failed", err)
		return
	}
	resp.Passages = nil
	s.respondJSON(w, http.StatusOK, resp)
}

// sourceDocuments lists sources as "document:page".
func sourceDocuments(sources []models.Source) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = fmt.Sprintf("%s:%d", src.Document, src.Page)
	}
	return out
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	passages, err := s.pipeline.Retrieve(r.Context(), req.Question, req.K)
	if err != nil {
		s.fail(w, "retrieve failed", err)
		return
	}
	if passages == nil {
		passages = []models.Passage{}
	}
	s.respondJSON(w, http.StatusOK, RetrieveResponse{Passages: passages})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.catalog.CountDocuments(ctx)
	if err != nil {
		s.fail(w, "status: count documents failed", err)
		return
	}
	chunkCount, err := s.catalog.CountChunks(ctx)
	if err != nil {
		s.fail(w, "status: count chunks failed", err)
		return
	}
	resp := StatusResponse{
		Documents:     docCount,
		Chunks:        chunkCount,
		VectorRecords: s.index.Size(),
		IndexState:    s.index.State().String(),
		IndexBuilds:   s.index.Generation(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Config: StatusConfig{
			Metric:              string(s.index.Metric()),
			EmbeddingProvider:   s.config.Embedding.Provider,
			EmbeddingDimensions: s.config.Embedding.Dimensions,
			GenerationProvider:  s.config.Generation.Provider,
			ChunkSize:           s.config.Chunking.ChunkSize,
			ChunkOverlap:        s.config.Chunking.ChunkOverlap,
			DefaultK:            s.config.Retrieval.DefaultK,
			MaxK:                s.config.Retrieval.MaxK,
			DatabasePath:        s.config.Storage.DatabasePath,
		},
	}
	paths := storage.DatabaseFiles(s.config.Storage.DatabasePath)
	if s.config.Storage.CatalogIndexPath != "" {
		paths = append(paths, s.config.Storage.CatalogIndexPath)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp.DiskUsageBytes = diskBytes
	}
	if s.watch != nil {
		stats := s.watch.Stats()
		resp.Watch = &WatchStatus{
			Directories: s.watch.Directories(),
			Indexed:     stats.Indexed,
			Failed:      stats.Failed,
			Removed:     stats.Removed,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}
