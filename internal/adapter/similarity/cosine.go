// Package similarity ranks stored vectors against a query vector for the local
// index backends.
package similarity

import (
	"math"
	"sort"

	"quotesearch/internal/domain"
)

// Candidate is a stored vector considered for a query.
type Candidate struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Cosine returns the cosine similarity of a and b. ok is false when the
// similarity is undefined: different lengths or a zero-norm vector.
func Cosine(a, b []float32) (score float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// TopK scores candidates against query and returns the best k, ordered by
// descending score with ascending id among equal scores. Candidates with an
// undefined similarity are skipped.
func TopK(query []float32, candidates []Candidate, k int) []domain.Match {
	if k < 1 || len(candidates) == 0 {
		return []domain.Match{}
	}

	scored := make([]domain.Match, 0, len(candidates))
	for _, c := range candidates {
		s, ok := Cosine(query, c.Vector)
		if !ok {
			continue
		}
		scored = append(scored, domain.Match{
			ID:       c.ID,
			Score:    s,
			Metadata: CopyMetadata(c.Metadata),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// CopyMetadata returns a shallow copy of m so callers cannot mutate stored
// state. nil stays nil.
func CopyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CopyVector returns a copy of v.
func CopyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
