package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths = %d/%d/%d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS {
		t.Errorf("expected CLS %d, got %d", tokenCLS, ids[0])
	}
	if ids[3] != tokenSEP {
		t.Errorf("expected SEP at 3, got %d", ids[3])
	}
	for i, want := range []int64{1, 1, 1, 1, 0} {
		if attn[i] != want {
			t.Errorf("attention[%d] = %d, want %d", i, attn[i], want)
		}
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("a b c d e f g h", 4)
	if ids[3] != tokenSEP {
		t.Errorf("last token = %d, want SEP", ids[3])
	}
	for i := range attn {
		if attn[i] != 1 {
			t.Errorf("attention[%d] = 0 on a full sequence", i)
		}
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  Alpha, beta\tGAMMA.\n")
	if len(words) != 3 || words[0] != "alpha" || words[2] != "gamma" {
		t.Errorf("unexpected words %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
	if SplitWords(" ,. ") != nil {
		t.Error("punctuation only should return nil")
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("distinct inputs should hash differently")
	}
	if HashString("zzzzzzzzzzzzzzzz") < 0 {
		t.Error("hash should be non-negative")
	}
}
