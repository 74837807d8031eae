package port

import (
	"context"

	"quotesearch/internal/domain"
)

// Embedder turns text into a fixed-dimension vector. Implementations hold
// their model as shared immutable state and are safe for concurrent use.
type Embedder interface {
	// Embed encodes a single text. Empty or whitespace-only text returns
	// domain.ErrEmptyText.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// BatchEmbedder is implemented by embedders that encode many texts per
// remote call. Vectors are returned in input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the narrow client interface to a vector similarity index.
// Implementations are safe for concurrent use.
type VectorIndex interface {
	// Upsert writes records into namespace, replacing records with the same
	// id. Returns the number of records written.
	Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error)

	// Query returns at most topK matches from namespace ordered by descending
	// score. An empty namespace yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error)

	// Dimension returns the index dimensionality, or 0 when unknown.
	Dimension() int

	// Stats returns record counts.
	Stats(ctx context.Context) (domain.IndexStats, error)

	Close() error
}
