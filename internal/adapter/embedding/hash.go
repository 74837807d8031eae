package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"quotesearch/internal/domain"
)

// HashEmbedder is a local, deterministic embedder based on feature hashing.
// Each word contributes itself and its boundary-marked character trigrams
// (punctuation removed), hashed into dimension buckets with a sign bit, and
// the result is L2-normalized. It needs no model download, so lexically
// close texts like "D'oh!" and "doh" land close together.
type HashEmbedder struct {
	dimension int
}

const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

func NewHashEmbedder(dimension int) (*HashEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid hash embedding dimension %d: %w", dimension, domain.ErrModelUnavailable)
	}
	return &HashEmbedder{dimension: dimension}, nil
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyText
	}

	acc := make([]float64, e.dimension)
	for _, word := range normalizeWords(text) {
		e.add(acc, "w:"+word, wordWeight)
		for _, tri := range trigrams(word) {
			e.add(acc, "t:"+tri, trigramWeight)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *HashEmbedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}

// normalizeWords lowercases text, splits on whitespace and drops everything
// that is not a letter or digit inside each word.
func normalizeWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))

	var b strings.Builder
	for _, f := range fields {
		b.Reset()
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			words = append(words, b.String())
		}
	}
	return words
}

func trigrams(word string) []string {
	runes := []rune("^" + word + "$")
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}
