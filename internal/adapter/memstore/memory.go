package memstore

import (
	"context"
	"fmt"
	"sync"

	"quotesearch/internal/adapter/similarity"
	"quotesearch/internal/domain"
)

// Index is an in-memory vector index partitioned by namespace. Nothing is
// persisted; it backs tests and the "memory" index backend.
type Index struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]entry
}

type entry struct {
	vector   []float32
	metadata map[string]string
}

func NewIndex(dimension int) *Index {
	return &Index{
		dimension:  dimension,
		namespaces: make(map[string]map[string]entry),
	}
}

func (s *Index) Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record without id")
		}
		if len(r.Vector) != s.dimension {
			return 0, fmt.Errorf("record %s: expected %d, got %d: %w", r.ID, s.dimension, len(r.Vector), domain.ErrDimensionMismatch)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = entry{
			vector:   similarity.CopyVector(r.Vector),
			metadata: similarity.CopyMetadata(r.Metadata),
		}
	}
	return len(records), nil
}

func (s *Index) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query: expected %d, got %d: %w", s.dimension, len(vector), domain.ErrDimensionMismatch)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	candidates := make([]similarity.Candidate, 0, len(ns))
	for id, e := range ns {
		candidates = append(candidates, similarity.Candidate{
			ID:       id,
			Vector:   e.vector,
			Metadata: e.metadata,
		})
	}
	return similarity.TopK(vector, candidates, topK), nil
}

func (s *Index) Dimension() int {
	return s.dimension
}

func (s *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.IndexStats{
		Dimension:  s.dimension,
		Namespaces: make(map[string]int, len(s.namespaces)),
	}
	for name, ns := range s.namespaces {
		stats.Namespaces[name] = len(ns)
		stats.Total += len(ns)
	}
	return stats, nil
}

func (s *Index) Close() error {
	return nil
}
