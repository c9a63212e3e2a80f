package embedding

import "strings"

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// Tokenizer produces token ids for BERT-style models.
type Tokenizer interface {
	Tokenize(text string) []int64
}

// SimpleTokenizer is a word-split tokenizer with hash-based token ids, wrapped in
// [CLS] and [SEP]. Text without words yields no tokens.
type SimpleTokenizer struct{}

// Tokenize splits text into words and maps each to a token id.
func (t *SimpleTokenizer) Tokenize(text string) []int64 {
	words := SplitWords(text)
	if len(words) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, clsToken)
	for _, word := range words {
		ids = append(ids, int64(HashString(word)%vocabSize))
	}
	return append(ids, sepToken)
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 {
		h = 0
	}
	return h
}
