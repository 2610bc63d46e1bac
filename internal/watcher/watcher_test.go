package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

type recordingIngester struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (r *recordingIngester) IndexFile(_ context.Context, path string, _ []string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, path)
	return &models.Document{ID: path, ChunkCount: 1}, nil
}

func (r *recordingIngester) DeleteFile(_ context.Context, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, path)
	return 1, nil
}

func (r *recordingIngester) snapshot() (indexed, deleted []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.indexed...), append([]string(nil), r.deleted...)
}

func watchConfig(dirs ...string) config.WatchConfig {
	return config.WatchConfig{Directories: dirs, Extensions: []string{".txt", ".md"}}
}

func startWatcher(t *testing.T, cfg config.WatchConfig) (*Watcher, *recordingIngester) {
	t.Helper()
	ing := &recordingIngester{}
	w := NewWatcher(cfg, ing, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w, ing
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_IngestsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	w, ing := startWatcher(t, watchConfig(dir))

	if err := writeFile(filepath.Join(dir, "f.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "skip.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := ing.snapshot()
		return contains(indexed, "f.txt")
	})
	indexed, _ := ing.snapshot()
	if contains(indexed, "skip.xyz") {
		t.Error("skip.xyz should not be ingested")
	}
	if w.Stats().Indexed < 1 {
		t.Errorf("stats = %+v", w.Stats())
	}
}

func TestWatcher_DebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	_, ing := startWatcher(t, watchConfig(dir))

	path := filepath.Join(dir, "busy.txt")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		indexed, _ := ing.snapshot()
		return len(indexed) > 0
	})
	time.Sleep(150 * time.Millisecond)
	indexed, _ := ing.snapshot()
	if len(indexed) > 2 {
		t.Errorf("expected writes to be debounced, got %d ingests", len(indexed))
	}
}

func TestWatcher_RemoveDeletesDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.md")
	if err := writeFile(path, "bye"); err != nil {
		t.Fatal(err)
	}
	w, ing := startWatcher(t, watchConfig(dir))

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, deleted := ing.snapshot()
		return contains(deleted, "gone.md")
	})
	if w.Stats().Removed != 1 {
		t.Errorf("stats = %+v", w.Stats())
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	w, ing := startWatcher(t, watchConfig(dir))
	w.SyncExistingFiles()

	indexed, _ := ing.snapshot()
	if len(indexed) != 1 || !strings.HasSuffix(indexed[0], "a.txt") {
		t.Errorf("expected one indexed file a.txt, got %v", indexed)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	_, ing := startWatcher(t, watchConfig(dir))

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to add the new directories.
	time.Sleep(200 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		indexed, _ := ing.snapshot()
		return contains(indexed, "deep.txt")
	})
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w, _ := startWatcher(t, watchConfig(root))
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_StopDropsPendingIngest(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := NewWatcher(watchConfig(dir), ing, WithDebounce(time.Hour))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.schedule(filepath.Join(dir, "later.txt"))
	w.Stop()
	w.Stop()
	w.SyncExistingFiles()
	if indexed, _ := ing.snapshot(); len(indexed) != 0 {
		t.Errorf("expected no ingests after Stop, got %v", indexed)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
