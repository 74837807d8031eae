package embedding

import (
	"context"
	"fmt"

	"quotesearch/config"
	"quotesearch/internal/domain"
	"quotesearch/internal/port"
)

// probeText is encoded once at startup to prove the model is usable.
const probeText = "D'oh!"

// DefaultHashDimension is the hash embedder size when the config sets none.
const DefaultHashDimension = 384

// defaultModels is used when the config names a provider but no model.
var defaultModels = map[string]string{
	"openai":   "text-embedding-3-small",
	"jina":     "jina-embeddings-v3",
	"deepseek": "deepseek-embedding",
	"ollama":   "all-minilm",
}

// New creates the embedder selected by cfg.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}

	var (
		remote *OpenAIEmbedder
		err    error
	)
	switch cfg.Provider {
	case "openai":
		remote, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "deepseek":
		remote, err = NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "jina":
		remote, err = NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "ollama":
		remote, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension)
	case "hash":
		if cfg.Dimension == 0 {
			cfg.Dimension = DefaultHashDimension
		}
		local, err := NewHashEmbedder(cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// Probe encodes a fixed text and checks the vector length against the
// embedder's declared dimension. A failure means the model is unusable and
// the process should not start serving.
func Probe(ctx context.Context, e port.Embedder) error {
	vec, err := e.Embed(ctx, probeText)
	if err != nil {
		return fmt.Errorf("probe %s: %w", e.ModelName(), err)
	}
	if len(vec) != e.Dimension() {
		return fmt.Errorf("probe %s: model returned %d dimensions, expected %d: %w",
			e.ModelName(), len(vec), e.Dimension(), domain.ErrDimensionMismatch)
	}
	return nil
}
