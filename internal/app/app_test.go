package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotesearch/config"
	"quotesearch/internal/adapter/cache"
	"quotesearch/internal/domain"
	"quotesearch/internal/logging"
)

func testConfig(backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = 32
	cfg.Index.Backend = backend
	return cfg
}

func TestOpen_BackendsPersist(t *testing.T) {
	for _, backend := range []string{"bolt", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig(backend)
			ctx := context.Background()

			svc, err := Open(ctx, cfg, dir, logging.Noop())
			require.NoError(t, err)
			_, err = svc.Upsert.Upsert(ctx, "simpsons", []domain.RecordInput{
				{ID: "s01e01-001", Metadata: map[string]string{"character": "Homer", "quote": "D'oh!"}},
			}, nil)
			require.NoError(t, err)
			require.NoError(t, svc.Close())

			svc, err = Open(ctx, cfg, dir, logging.Noop())
			require.NoError(t, err)
			defer svc.Close()

			res, err := svc.Retriever.Retrieve(ctx, domain.Query{Text: "doh", TopK: 1, Namespace: "simpsons"})
			require.NoError(t, err)
			require.Len(t, res.Matches, 1)
			assert.Equal(t, "s01e01-001", res.Matches[0].ID)
		})
	}
}

func TestOpen_RefusesOtherDimension(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	svc, err := Open(ctx, testConfig("bolt"), dir, logging.Noop())
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	cfg := testConfig("bolt")
	cfg.Embedding.Dimension = 64
	_, err = Open(ctx, cfg, dir, logging.Noop())
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch), "got %v", err)
}

func TestOpen_CacheWrapsPipeline(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Retrieve.CacheSize = 10

	svc, err := Open(context.Background(), cfg, t.TempDir(), logging.Noop())
	require.NoError(t, err)
	defer svc.Close()

	_, ok := svc.Retriever.(*cache.CachedRetriever)
	assert.True(t, ok)

	ctx := context.Background()
	res, err := svc.Retriever.Retrieve(ctx, domain.Query{Text: "doh"})
	require.NoError(t, err)
	assert.True(t, res.Empty())

	_, err = svc.Upsert.Upsert(ctx, "", []domain.RecordInput{{ID: "1", Text: "D'oh!"}}, nil)
	require.NoError(t, err)

	res, err = svc.Retriever.Retrieve(ctx, domain.Query{Text: "doh"})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1, "upsert must invalidate cached empty result")
}

func TestOpen_ModelUnavailable(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKeyEnv = "QUOTESEARCH_TEST_MISSING_KEY"
	t.Setenv("QUOTESEARCH_TEST_MISSING_KEY", "")

	_, err := Open(context.Background(), cfg, t.TempDir(), logging.Noop())
	assert.True(t, errors.Is(err, domain.ErrModelUnavailable))
}

func TestOpen_Pinecone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dimension":32,"totalVectorCount":0}`))
	}))
	defer srv.Close()
	t.Setenv("QUOTESEARCH_TEST_PINECONE", "secret")

	cfg := testConfig("pinecone")
	cfg.Index.Host = srv.URL
	cfg.Index.APIKeyEnv = "QUOTESEARCH_TEST_PINECONE"

	svc, err := Open(context.Background(), cfg, t.TempDir(), logging.Noop())
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, 32, svc.Index.Dimension())
}
