// Package indexer turns crawled page text into inverted index postings.
package indexer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"

	"github.com/spidex/spidex/internal/config"
)

// English stopwords excluded from the index. Matching query tokens are
// dropped by the same tokenizer, so the two sides always agree.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"if": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "she": true, "that": true,
	"the": true, "their": true, "them": true, "then": true, "there": true,
	"they": true, "this": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "you": true, "your": true,
}

// Tokenizer normalizes text into index terms. The indexer and the query
// engine share one instance so stored and queried terms line up.
type Tokenizer struct {
	minLength int
	maxLength int
	stemming  bool
	stopwords bool
}

// NewTokenizer creates a tokenizer from the indexing configuration.
func NewTokenizer(cfg config.IndexerConfig) *Tokenizer {
	return &Tokenizer{
		minLength: cfg.MinTokenLength,
		maxLength: cfg.MaxTokenLength,
		stemming:  cfg.Stemming,
		stopwords: cfg.Stopwords,
	}
}

// Tokenize splits text on non-letter, non-digit runes, lowercases each token
// and applies the length, stopword and stemming rules. Order is preserved;
// duplicates are kept so callers can count term frequency.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < t.minLength || len(f) > t.maxLength {
			continue
		}
		if t.stopwords && stopwords[f] {
			continue
		}
		if t.stemming {
			if stemmed, err := snowball.Stem(f, "english", false); err == nil && stemmed != "" {
				f = stemmed
			}
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TermCounts tokenizes text and folds the tokens into term frequencies.
func (t *Tokenizer) TermCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, token := range t.Tokenize(text) {
		counts[token]++
	}
	return counts
}
