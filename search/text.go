package search

import (
	"strings"
	"unicode"
)

// Common English function words ignored when testing for verbatim overlap
// between a query and a chunk.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenize lowercases document text and splits it into word tokens on any
// non-alphanumeric rune, so punctuation and path separators inside
// extracted text never glue words together. Stop words are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, field := range fields {
		if !stopWords[field] {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// containsAllQueryWords reports whether every query token appears in the
// chunk text. A query reduced to nothing by stop-word filtering matches no
// chunk.
func containsAllQueryWords(chunkText, query string) bool {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return false
	}

	chunkTokens := make(map[string]bool)
	for _, token := range tokenize(chunkText) {
		chunkTokens[token] = true
	}

	for _, token := range queryTokens {
		if !chunkTokens[token] {
			return false
		}
	}
	return true
}
