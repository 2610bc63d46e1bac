package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T, path string) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t, "")
	ctx := context.Background()
	if err := idx.Index(ctx, "d1", &Entry{
		Title:   "Quarterly Report Q3.pdf",
		Content: "Revenue grew in the Omnisyan region. The Bayes model was retired.",
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	for _, q := range []string{"Omnisyan", "bayes"} {
		results, err := idx.Search(ctx, q, 10, nil)
		if err != nil {
			t.Fatalf("Search %q: %v", q, err)
		}
		if len(results) == 0 || results[0].ID != "d1" {
			t.Errorf("Search %q = %+v, want d1", q, results)
		}
	}
}

func TestBleveIndex_TitleNormalizedAndBoosted(t *testing.T) {
	idx := newTestIndex(t, "")
	ctx := context.Background()
	_ = idx.Index(ctx, "handbook", &Entry{Title: "employee_handbook-2024.pdf", Content: "policies"})
	_ = idx.Index(ctx, "memo", &Entry{Title: "memo.pdf", Content: "see the employee handbook for details"})

	results, err := idx.Search(ctx, "employee handbook", 10, &SearchOptions{TitleBoost: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "handbook" {
		t.Errorf("title match should rank first with boost, got %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t, "")
	ctx := context.Background()
	_ = idx.Index(ctx, "d1", &Entry{Title: "invoice.pdf", Content: "reimbursement procedure"})

	exact, _ := idx.Search(ctx, "reimbursment", 10, nil)
	if len(exact) != 0 {
		t.Errorf("misspelling should not match without fuzzy, got %+v", exact)
	}
	fuzzy, err := idx.Search(ctx, "reimbursment", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) != 1 {
		t.Errorf("fuzzy search got %+v", fuzzy)
	}
}

func TestBleveIndex_DeleteAndCount(t *testing.T) {
	idx := newTestIndex(t, "")
	ctx := context.Background()
	_ = idx.Index(ctx, "a", &Entry{Title: "a.pdf", Content: "alpha"})
	_ = idx.Index(ctx, "b", &Entry{Title: "b.pdf", Content: "beta"})
	if n, _ := idx.DocCount(); n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}
	if err := idx.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	results, _ := idx.Search(ctx, "alpha", 10, nil)
	if len(results) != 0 {
		t.Errorf("deleted document still found: %+v", results)
	}
}

func TestBleveIndex_ReopenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx.Index(context.Background(), "d1", &Entry{Title: "x.pdf", Content: "persisted words"})
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := newTestIndex(t, path)
	results, err := reopened.Search(context.Background(), "persisted", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("reopened index lost documents: %+v", results)
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("a_b-c.pdf"); got != "a b c.pdf" {
		t.Errorf("NormalizeTitle = %q", got)
	}
}
