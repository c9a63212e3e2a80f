package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids := tok.Tokenize("hello world")
	if len(ids) != 4 {
		t.Fatalf("len(ids)=%d, want 4", len(ids))
	}
	if ids[0] != clsToken {
		t.Errorf("expected CLS %d, got %d", clsToken, ids[0])
	}
	if ids[3] != sepToken {
		t.Errorf("expected SEP %d, got %d", sepToken, ids[3])
	}
	for _, id := range ids[1:3] {
		if id < 0 || id >= vocabSize {
			t.Errorf("token id %d out of vocab range", id)
		}
	}
}

func TestSimpleTokenizer_Empty(t *testing.T) {
	tok := &SimpleTokenizer{}
	for _, text := range []string{"", "   ", "\n\t"} {
		if ids := tok.Tokenize(text); len(ids) != 0 {
			t.Errorf("Tokenize(%q) = %v, want no tokens", text, ids)
		}
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b\tc\n ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("a very long string that overflows the accumulator many times over") < 0 {
		t.Error("hash should be non-negative")
	}
}
