package memstore

import (
	"context"
	"errors"
	"testing"

	"quotesearch/internal/domain"
)

func TestIndex_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(2)

	if _, err := idx.Upsert(ctx, []domain.Record{{ID: "a1", Vector: []float32{1, 0}}}, "A"); err != nil {
		t.Fatal(err)
	}

	for _, ns := range []string{"B", ""} {
		matches, err := idx.Query(ctx, []float32{1, 0}, 5, ns)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 0 {
			t.Errorf("namespace %q leaked %v", ns, matches)
		}
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "a1" {
		t.Errorf("expected a1 in namespace A, got %v", matches)
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(2)

	idx.Upsert(ctx, []domain.Record{{ID: "r", Vector: []float32{1, 0}, Metadata: map[string]string{"quote": "old"}}}, "")
	idx.Upsert(ctx, []domain.Record{{ID: "r", Vector: []float32{0, 1}, Metadata: map[string]string{"character": "Bart"}}}, "")

	matches, err := idx.Query(ctx, []float32{0, 1}, 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Field("quote") != "" {
		t.Error("replace must not merge old metadata")
	}
	if matches[0].Field("character") != "Bart" {
		t.Errorf("expected latest metadata, got %v", matches[0].Metadata)
	}
	if matches[0].Score < 0.999 {
		t.Errorf("expected latest vector to be used, score %f", matches[0].Score)
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(3)

	_, err := idx.Upsert(ctx, []domain.Record{{ID: "ok", Vector: []float32{1, 2, 3}}, {ID: "bad", Vector: []float32{1}}}, "")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	stats, _ := idx.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("upsert must be all-or-nothing, got %d records", stats.Total)
	}

	if _, err := idx.Query(ctx, []float32{1, 2}, 1, ""); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch on query, got %v", err)
	}
}

func TestIndex_Stats(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(2)
	idx.Upsert(ctx, []domain.Record{{ID: "a", Vector: []float32{1, 0}}, {ID: "b", Vector: []float32{0, 1}}}, "simpsons")
	idx.Upsert(ctx, []domain.Record{{ID: "c", Vector: []float32{1, 1}}}, "")

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Namespaces["simpsons"] != 2 || stats.Namespaces[""] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
