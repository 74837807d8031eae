package domain

import (
	"strconv"
	"strings"
)

// DefaultTopK is the number of matches returned when a query does not ask for
// a valid count.
const DefaultTopK = 5

// Recognized metadata keys. All of them are optional.
const (
	MetaQuote     = "quote"
	MetaCharacter = "character"
	MetaAuthor    = "author"
	MetaCategory  = "category"
)

// Record is a corpus entry stored in a vector index.
type Record struct {
	ID        string            `json:"id" yaml:"id"`
	Vector    []float32         `json:"vector" yaml:"vector"`
	Namespace string            `json:"namespace" yaml:"namespace"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RecordInput is a record before it has been embedded.
type RecordInput struct {
	ID       string            `json:"id" yaml:"id"`
	Text     string            `json:"text,omitempty" yaml:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EmbedText returns the text to embed for the input: Text, or the quote when
// Text is empty.
func (r RecordInput) EmbedText() string {
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	return r.Metadata[MetaQuote]
}

// Query is a retrieval request.
type Query struct {
	Text      string
	TopK      int
	Namespace string
}

// Match is a single query result.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Field returns the metadata value for key, or "" when absent.
func (m Match) Field(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// Result is the successful outcome of a retrieval. Zero matches is a valid
// result, not an error.
type Result struct {
	Query     string
	Namespace string
	Matches   []Match
}

// Empty reports whether the query matched nothing.
func (r Result) Empty() bool {
	return len(r.Matches) == 0
}

// ParseTopK parses a raw top_k value. Anything that is not a positive integer
// falls back to def.
func ParseTopK(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// IndexStats describes the contents of a vector index.
type IndexStats struct {
	Dimension  int            `json:"dimension"`
	Total      int            `json:"total"`
	Namespaces map[string]int `json:"namespaces"`
}
