package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"quotesearch/internal/domain"
	"quotesearch/internal/port"
)

// Invalidator is implemented by result caches that must be dropped after the
// index changes.
type Invalidator interface {
	Invalidate()
}

// UpsertUseCase embeds record inputs and writes them to the index. Records with
// an existing id are replaced.
type UpsertUseCase struct {
	embedder port.Embedder
	index    port.VectorIndex
	caches   []Invalidator
	logger   *slog.Logger
}

func NewUpsertUseCase(embedder port.Embedder, index port.VectorIndex, logger *slog.Logger, caches ...Invalidator) *UpsertUseCase {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &UpsertUseCase{
		embedder: embedder,
		index:    index,
		caches:   caches,
		logger:   logger,
	}
}

// embedBatchSize bounds the texts per EmbedBatch call so progress is reported
// while a large file is embedded.
const embedBatchSize = 100

// Upsert embeds every input, then writes all records in a single index call.
// Nothing is written if any input fails validation or embedding. progress,
// when non-nil, is called with the number of inputs embedded so far.
//
// Caches are invalidated whenever the index was called, even on error: a
// backend that writes in batches may have stored part of the records. The
// returned count is what the index reports as written.
func (u *UpsertUseCase) Upsert(ctx context.Context, namespace string, inputs []domain.RecordInput, progress func(done int)) (int, error) {
	if u.embedder == nil {
		return 0, fmt.Errorf("upsert: %w", domain.ErrModelUnavailable)
	}
	if u.index == nil {
		return 0, fmt.Errorf("upsert: %w", domain.ErrIndexUnavailable)
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(inputs))
	texts := make([]string, len(inputs))
	for i, in := range inputs {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return 0, fmt.Errorf("record %d: missing id", i)
		}
		text := in.EmbedText()
		if strings.TrimSpace(text) == "" {
			return 0, fmt.Errorf("record %q: no text or quote to embed", id)
		}
		ids[i] = id
		texts[i] = text
	}

	vectors, err := u.embedAll(ctx, ids, texts, progress)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]int, len(inputs))
	records := make([]domain.Record, 0, len(inputs))
	for i, in := range inputs {
		rec := domain.Record{
			ID:        ids[i],
			Vector:    vectors[i],
			Namespace: namespace,
			Metadata:  in.Metadata,
		}

		// last occurrence wins, same as a second upsert call
		if j, dup := seen[rec.ID]; dup {
			records[j] = rec
		} else {
			seen[rec.ID] = len(records)
			records = append(records, rec)
		}
	}

	n, err := u.index.Upsert(ctx, records, namespace)

	for _, c := range u.caches {
		c.Invalidate()
	}

	if err != nil {
		if n > 0 {
			u.logger.Warn("partial upsert", "namespace", namespace, "written", n, "requested", len(records), "error", err)
		}
		return n, fmt.Errorf("failed to upsert %d records (%d written): %w", len(records), n, err)
	}

	u.logger.Info("upserted records", "namespace", namespace, "count", n)
	return n, nil
}

// embedAll embeds texts in input order, batching when the embedder supports it.
func (u *UpsertUseCase) embedAll(ctx context.Context, ids, texts []string, progress func(done int)) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	if batcher, ok := u.embedder.(port.BatchEmbedder); ok {
		for i := 0; i < len(texts); i += embedBatchSize {
			end := i + embedBatchSize
			if end > len(texts) {
				end = len(texts)
			}
			batch, err := batcher.EmbedBatch(ctx, texts[i:end])
			if err != nil {
				return nil, fmt.Errorf("records %q..%q: failed to embed: %w", ids[i], ids[end-1], err)
			}
			if len(batch) != end-i {
				return nil, fmt.Errorf("records %q..%q: got %d vectors for %d texts: %w", ids[i], ids[end-1], len(batch), end-i, domain.ErrModelUnavailable)
			}
			vectors = append(vectors, batch...)
			if progress != nil {
				progress(end)
			}
		}
		return vectors, nil
	}

	for i, text := range texts {
		vector, err := u.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("record %q: failed to embed: %w", ids[i], err)
		}
		vectors = append(vectors, vector)
		if progress != nil {
			progress(i + 1)
		}
	}
	return vectors, nil
}
