// Package cli provides the HTTP client and output formatting for the kotae CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects human-readable or JSON output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// Format returns OutputJSON when asJSON is set.
func Format(asJSON bool) OutputFormat {
	if asJSON {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its sources.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(resp.Answer))
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  - %s, page %d\n", s.Document, s.Page)
		}
	}
	return nil
}

// WritePassages writes retrieved passages, best first.
func WritePassages(w io.Writer, passages []models.Passage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, passages)
	}
	if len(passages) == 0 {
		fmt.Fprintln(w, "No passages found.")
		return nil
	}
	for i, p := range passages {
		fmt.Fprintf(w, "%d. [%.4f] %s, page %d (chunk %d)\n", i+1, p.Score, p.Document, p.Page, p.ChunkIndex)
		fmt.Fprintf(w, "   %s\n", TruncateWords(p.Text, 40))
	}
	return nil
}

// WriteUpload writes the result of an ingest.
func WriteUpload(w io.Writer, path string, resp *server.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Ingested %s: id=%s pages=%d chunks=%d\n", path, resp.ID, resp.Pages, resp.Chunks)
	return nil
}

// WriteDelete writes the result of a delete.
func WriteDelete(w io.Writer, resp *server.DeleteResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Deleted %s (%d records removed)\n", resp.ID, resp.Removed)
	return nil
}

// WriteDocuments writes a page of the catalog.
func WriteDocuments(w io.Writer, list *server.DocumentList, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, list)
	}
	if len(list.Documents) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range list.Documents {
		fmt.Fprintf(w, "%s  %-40s  pages=%-4d chunks=%-5d %s\n",
			d.ID, utils.Truncate(d.Filename, 40), d.PageCount, d.ChunkCount, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%d of %d document(s)\n", len(list.Documents), list.Total)
	return nil
}

// WriteStatus writes the server status report.
func WriteStatus(w io.Writer, st *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # registered in the catalog\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # sum of catalog chunk counts\n", st.Chunks)
	fmt.Fprintf(w, "vector_records:     %d   # records in the live index\n", st.VectorRecords)
	fmt.Fprintf(w, "index_state:        %s\n", st.IndexState)
	fmt.Fprintf(w, "index_builds:       %d\n", st.IndexBuilds)
	if st.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", st.DiskUsageBytes)
	}
	fmt.Fprintf(w, "uptime:             %s\n", st.Uptime)
	if st.Watch != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# watch")
		for _, d := range st.Watch.Directories {
			fmt.Fprintf(w, "directory:          %s\n", d)
		}
		fmt.Fprintf(w, "indexed:            %d\n", st.Watch.Indexed)
		fmt.Fprintf(w, "failed:             %d\n", st.Watch.Failed)
		fmt.Fprintf(w, "removed:            %d\n", st.Watch.Removed)
	}
	c := st.Config
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "metric:             %s\n", c.Metric)
	fmt.Fprintf(w, "embedding:          %s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingDimensions)
	fmt.Fprintf(w, "generation:         %s\n", c.GenerationProvider)
	fmt.Fprintf(w, "chunk_size:         %d\n", c.ChunkSize)
	fmt.Fprintf(w, "chunk_overlap:      %d\n", c.ChunkOverlap)
	fmt.Fprintf(w, "default_k:          %d\n", c.DefaultK)
	fmt.Fprintf(w, "max_k:              %d\n", c.MaxK)
	if c.DatabasePath != "" {
		fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
