package fileid

import (
	"strings"
	"testing"
)

func TestFileDocID(t *testing.T) {
	id1 := FileDocID("/inbox/handbook.pdf")
	id2 := FileDocID("/inbox/handbook.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) {
		t.Errorf("ID should have prefix %q: got %q", prefix, id1)
	}
	if !IsFileDocID(id1) {
		t.Errorf("IsFileDocID(%q) = false", id1)
	}
}

func TestFileDocID_differentPaths(t *testing.T) {
	if FileDocID("/inbox/a.pdf") == FileDocID("/inbox/b.pdf") {
		t.Error("different paths should give different IDs")
	}
}

func TestFileDocID_normalized(t *testing.T) {
	id1 := FileDocID("/inbox/a.pdf")
	for _, p := range []string{"/inbox/./a.pdf", "/inbox//a.pdf", "/inbox/sub/../a.pdf"} {
		if FileDocID(p) != id1 {
			t.Errorf("FileDocID(%q) should match cleaned path", p)
		}
	}
}

func TestIsFileDocID(t *testing.T) {
	for _, id := range []string{"", "file-", "file-xyz", "3f2a9c1e-uuid"} {
		if IsFileDocID(id) {
			t.Errorf("IsFileDocID(%q) = true", id)
		}
	}
}
