package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"quotesearch/internal/adapter/similarity"
	"quotesearch/internal/domain"
)

var (
	bucketMeta       = []byte("meta")
	bucketNamespaces = []byte("namespaces")
)

// BoltIndex implements VectorIndex using BoltDB for persistence.
// Each namespace is a nested bucket; search is brute-force cosine over an
// in-memory copy of the vectors.
type BoltIndex struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	// In-memory cache for fast search, keyed by namespace then id
	vectors map[string]map[string]vectorEntry
}

type vectorEntry struct {
	vector   []float32
	metadata map[string]string
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

// OpenBoltIndex opens or creates a bolt-backed index at path. An existing
// index built for another dimension or embedding model is refused.
func OpenBoltIndex(path string, dimension int, model string) (*BoltIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketNamespaces} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &BoltIndex{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]map[string]vectorEntry),
	}

	if err := idx.checkInfo(dimension, model); err != nil {
		db.Close()
		return nil, err
	}

	if err := idx.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return idx, nil
}

func namespaceKey(namespace string) []byte {
	// bolt bucket names must be non-empty; the prefix keeps "" addressable.
	return append([]byte{'/'}, namespace...)
}

// loadVectors loads all vectors from BoltDB into memory.
func (s *BoltIndex) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketNamespaces)
		return root.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}
			ns := string(name[1:])
			entries := make(map[string]vectorEntry)
			err := root.Bucket(name).ForEach(func(k, v []byte) error {
				var stored storedVector
				if err := json.Unmarshal(v, &stored); err != nil {
					return nil // Skip corrupted entries
				}
				entries[string(k)] = vectorEntry{
					vector:   stored.Vector,
					metadata: stored.Metadata,
				}
				return nil
			})
			if err != nil {
				return err
			}
			s.vectors[ns] = entries
			return nil
		})
	})
}

// Upsert adds or replaces records in namespace. Nothing is written when any
// record is invalid.
func (s *BoltIndex) Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error) {
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record without id")
		}
		if len(r.Vector) != s.dimension {
			return 0, fmt.Errorf("record %s: expected %d, got %d: %w", r.ID, s.dimension, len(r.Vector), domain.ErrDimensionMismatch)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketNamespaces).CreateBucketIfNotExists(namespaceKey(namespace))
		if err != nil {
			return err
		}

		for _, r := range records {
			data, err := json.Marshal(storedVector{Vector: r.Vector, Metadata: r.Metadata})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bolt upsert: %v: %w", err, domain.ErrIndexUnavailable)
	}

	// Update in-memory cache only after the commit succeeded
	entries, ok := s.vectors[namespace]
	if !ok {
		entries = make(map[string]vectorEntry)
		s.vectors[namespace] = entries
	}
	for _, r := range records {
		entries[r.ID] = vectorEntry{
			vector:   similarity.CopyVector(r.Vector),
			metadata: similarity.CopyMetadata(r.Metadata),
		}
	}

	return len(records), nil
}

// Query finds the topK nearest vectors in namespace using cosine similarity.
func (s *BoltIndex) Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query: expected %d, got %d: %w", s.dimension, len(vector), domain.ErrDimensionMismatch)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.vectors[namespace]
	candidates := make([]similarity.Candidate, 0, len(entries))
	for id, e := range entries {
		candidates = append(candidates, similarity.Candidate{
			ID:       id,
			Vector:   e.vector,
			Metadata: e.metadata,
		})
	}

	return similarity.TopK(vector, candidates, topK), nil
}

func (s *BoltIndex) Dimension() int {
	return s.dimension
}

// Stats returns per-namespace record counts.
func (s *BoltIndex) Stats(ctx context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.IndexStats{
		Dimension:  s.dimension,
		Namespaces: make(map[string]int, len(s.vectors)),
	}
	for ns, entries := range s.vectors {
		stats.Namespaces[ns] = len(entries)
		stats.Total += len(entries)
	}
	return stats, nil
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}
