// Package app wires the embedder, vector index and use cases from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"quotesearch/config"
	"quotesearch/internal/adapter/cache"
	"quotesearch/internal/adapter/embedding"
	"quotesearch/internal/adapter/memstore"
	"quotesearch/internal/adapter/pinecone"
	"quotesearch/internal/adapter/sqlitestore"
	"quotesearch/internal/adapter/store"
	"quotesearch/internal/port"
	"quotesearch/internal/usecase"
)

// Services holds the process-wide model and index, created once and shared
// by every request.
type Services struct {
	Embedder  port.Embedder
	Index     port.VectorIndex
	Pipeline  *usecase.RetrievePipeline
	Retriever port.Retriever // Pipeline, or its cached wrapper
	Upsert    *usecase.UpsertUseCase
}

// Open creates the embedder, proves it with a probe encode, opens the index
// and builds the use cases.
func Open(ctx context.Context, cfg *config.Config, rootDir string, logger *slog.Logger) (*Services, error) {
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if err := embedding.Probe(ctx, emb); err != nil {
		return nil, fmt.Errorf("embedding model not usable: %w", err)
	}
	logger.Info("embedding model ready", "model", emb.ModelName(), "dimension", emb.Dimension())

	idx, err := OpenIndex(ctx, cfg, rootDir, emb)
	if err != nil {
		return nil, err
	}
	logger.Info("vector index ready", "backend", cfg.Index.Backend, "name", cfg.Index.Name, "dimension", idx.Dimension())

	pipeline, err := usecase.NewRetrievePipeline(emb, idx, usecase.RetrieveOptions{
		DefaultTopK:     cfg.Retrieve.DefaultTopK,
		MaxTopK:         cfg.Retrieve.MaxTopK,
		Namespaces:      cfg.Retrieve.Namespaces,
		Timeout:         cfg.Server.RequestTimeout,
		MaxInFlight:     cfg.Server.MaxInFlight,
		TrustIndexOrder: cfg.Retrieve.TrustIndexOrder,
	}, logger)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("invalid retrieve config: %w", err)
	}

	s := &Services{
		Embedder:  emb,
		Index:     idx,
		Pipeline:  pipeline,
		Retriever: pipeline,
	}

	var invalidators []usecase.Invalidator
	if cfg.Retrieve.CacheSize > 0 {
		cached := cache.NewCachedRetriever(pipeline, cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL))
		s.Retriever = cached
		invalidators = append(invalidators, cached)
	}
	s.Upsert = usecase.NewUpsertUseCase(emb, idx, logger, invalidators...)

	return s, nil
}

// OpenIndex opens the configured backend for the embedder's dimension.
func OpenIndex(ctx context.Context, cfg *config.Config, rootDir string, emb port.Embedder) (port.VectorIndex, error) {
	switch cfg.Index.Backend {
	case "bolt", "sqlite":
		path := cfg.ResolvePath(rootDir)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		var (
			idx port.VectorIndex
			err error
		)
		if cfg.Index.Backend == "bolt" {
			idx, err = openBolt(path, emb)
		} else {
			idx, err = openSQLite(path, emb)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s index at %s: %w", cfg.Index.Backend, path, err)
		}
		return idx, nil

	case "memory":
		return memstore.NewIndex(emb.Dimension()), nil

	case "pinecone":
		client, err := pinecone.New(cfg.Index.APIKeyEnv, cfg.Index.Host, emb.Dimension(), cfg.Index.Timeout)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to index %s: %w", cfg.Index.Name, err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Index.Backend)
	}
}

func openBolt(path string, emb port.Embedder) (port.VectorIndex, error) {
	idx, err := store.OpenBoltIndex(path, emb.Dimension(), emb.ModelName())
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func openSQLite(path string, emb port.Embedder) (port.VectorIndex, error) {
	idx, err := sqlitestore.Open(path, emb.Dimension(), emb.ModelName())
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Services) Close() error {
	if s == nil || s.Index == nil {
		return nil
	}
	if err := s.Index.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
