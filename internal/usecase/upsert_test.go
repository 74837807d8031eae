package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotesearch/internal/adapter/embedding"
	"quotesearch/internal/adapter/memstore"
	"quotesearch/internal/adapter/pinecone"
	"quotesearch/internal/domain"
)

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

func TestUpsert_ReplacesAndInvalidates(t *testing.T) {
	emb, err := embedding.NewHashEmbedder(32)
	require.NoError(t, err)
	idx := memstore.NewIndex(32)
	inv := &countingInvalidator{}
	up := NewUpsertUseCase(emb, idx, nil, inv)
	ctx := context.Background()

	var progress []int
	n, err := up.Upsert(ctx, "", []domain.RecordInput{
		{ID: "s01e01-001", Metadata: map[string]string{"quote": "D'oh!", "character": "Homer"}},
		{ID: "s01e01-002", Text: "Eat my shorts"},
	}, func(done int) { progress = append(progress, done) })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, progress)
	assert.Equal(t, 1, inv.n)

	_, err = up.Upsert(ctx, "", []domain.RecordInput{
		{ID: "s01e01-001", Metadata: map[string]string{"quote": "Woo-hoo!"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.n)

	vec, err := emb.Embed(ctx, "woohoo")
	require.NoError(t, err)
	matches, err := idx.Query(ctx, vec, 1, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "s01e01-001", matches[0].ID)
	assert.Equal(t, "", matches[0].Field("character"), "replace, not merge")

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestUpsert_DuplicateIDsLastWins(t *testing.T) {
	emb, _ := embedding.NewHashEmbedder(16)
	idx := memstore.NewIndex(16)
	up := NewUpsertUseCase(emb, idx, nil)

	n, err := up.Upsert(context.Background(), "A", []domain.RecordInput{
		{ID: "x", Text: "first", Metadata: map[string]string{"quote": "first"}},
		{ID: "x", Text: "second", Metadata: map[string]string{"quote": "second"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	vec, _ := emb.Embed(context.Background(), "second")
	matches, err := idx.Query(context.Background(), vec, 5, "A")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "second", matches[0].Field("quote"))
}

func TestUpsert_InvalidInputWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		inputs []domain.RecordInput
	}{
		{"missing id", []domain.RecordInput{{ID: "ok", Text: "fine"}, {Text: "no id"}}},
		{"missing text", []domain.RecordInput{{ID: "ok", Text: "fine"}, {ID: "empty", Metadata: map[string]string{"character": "Maggie"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emb, _ := embedding.NewHashEmbedder(16)
			idx := memstore.NewIndex(16)
			inv := &countingInvalidator{}
			up := NewUpsertUseCase(emb, idx, nil, inv)

			_, err := up.Upsert(context.Background(), "", tc.inputs, nil)
			assert.Error(t, err)

			stats, _ := idx.Stats(context.Background())
			assert.Zero(t, stats.Total)
			assert.Zero(t, inv.n)
		})
	}
}

func TestUpsert_EmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{dim: 2, err: fmt.Errorf("down: %w", domain.ErrModelUnavailable)}
	up := NewUpsertUseCase(emb, memstore.NewIndex(2), nil)

	_, err := up.Upsert(context.Background(), "", []domain.RecordInput{{ID: "1", Text: "doh"}}, nil)
	assert.True(t, errors.Is(err, domain.ErrModelUnavailable))
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	emb, _ := embedding.NewHashEmbedder(8)
	up := NewUpsertUseCase(emb, memstore.NewIndex(4), nil)

	_, err := up.Upsert(context.Background(), "", []domain.RecordInput{{ID: "1", Text: "doh"}}, nil)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestUpsert_Empty(t *testing.T) {
	up := NewUpsertUseCase(&fakeEmbedder{dim: 2}, &fakeIndex{dim: 2}, nil)
	n, err := up.Upsert(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_PartialBatchFailureInvalidates(t *testing.T) {
	var batches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Vectors []json.RawMessage `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if batches.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
			return
		}
		fmt.Fprintf(w, `{"upsertedCount":%d}`, len(req.Vectors))
	}))
	defer srv.Close()

	t.Setenv("TEST_PINECONE_KEY", "secret")
	idx, err := pinecone.New("TEST_PINECONE_KEY", srv.URL, 8, time.Second)
	require.NoError(t, err)
	emb, _ := embedding.NewHashEmbedder(8)
	inv := &countingInvalidator{}
	up := NewUpsertUseCase(emb, idx, nil, inv)

	inputs := make([]domain.RecordInput, 150)
	for i := range inputs {
		inputs[i] = domain.RecordInput{ID: fmt.Sprintf("s01e01-%03d", i), Text: fmt.Sprintf("quote number %d", i)}
	}

	n, err := up.Upsert(context.Background(), "simpsons", inputs, nil)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable), "got %v", err)
	assert.Equal(t, 100, n, "first batch was written")
	assert.Equal(t, int32(2), batches.Load())
	assert.Equal(t, 1, inv.n, "written records must not be hidden by cached results")
}

func TestUpsert_FailedWriteStillInvalidates(t *testing.T) {
	inv := &countingInvalidator{}
	up := NewUpsertUseCase(&fakeEmbedder{dim: 2}, &failingIndex{fakeIndex{dim: 2}}, nil, inv)

	n, err := up.Upsert(context.Background(), "", []domain.RecordInput{{ID: "1", Text: "doh"}}, nil)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, inv.n)
}

type failingIndex struct{ fakeIndex }

func (x *failingIndex) Upsert(ctx context.Context, records []domain.Record, namespace string) (int, error) {
	return 0, fmt.Errorf("disk full: %w", domain.ErrIndexUnavailable)
}

type batchEmbedder struct {
	fakeEmbedder
	batchCalls [][]string
}

func (e *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls = append(e.batchCalls, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.fakeEmbedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestUpsert_UsesBatchEmbedder(t *testing.T) {
	emb := &batchEmbedder{fakeEmbedder: fakeEmbedder{dim: 2}}
	idx := memstore.NewIndex(2)
	up := NewUpsertUseCase(emb, idx, nil)

	inputs := make([]domain.RecordInput, 250)
	for i := range inputs {
		inputs[i] = domain.RecordInput{ID: fmt.Sprintf("q%d", i), Text: fmt.Sprintf("quote %d", i)}
	}
	// the quote is embedded when text is empty
	inputs[0] = domain.RecordInput{ID: "q0", Metadata: map[string]string{"quote": "D'oh!"}}

	var progress []int
	n, err := up.Upsert(context.Background(), "", inputs, func(done int) { progress = append(progress, done) })
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	require.Len(t, emb.batchCalls, 3)
	assert.Len(t, emb.batchCalls[0], 100)
	assert.Len(t, emb.batchCalls[2], 50)
	assert.Equal(t, "D'oh!", emb.batchCalls[0][0])
	assert.Equal(t, []int{100, 200, 250}, progress)

	vec, _ := emb.fakeEmbedder.Embed(context.Background(), "quote 249")
	matches, err := idx.Query(context.Background(), vec, 1, "")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestNamespacePolicy(t *testing.T) {
	p, err := NewNamespacePolicy([]string{"", "authors/*", "tv/**"})
	require.NoError(t, err)

	assert.True(t, p.Allows(""))
	assert.True(t, p.Allows("authors/twain"))
	assert.True(t, p.Allows("tv/simpsons/s01"))
	assert.False(t, p.Allows("authors/twain/letters"))
	assert.False(t, p.Allows("movies"))

	open, err := NewNamespacePolicy(nil)
	require.NoError(t, err)
	assert.True(t, open.Allows("anything"))
}
