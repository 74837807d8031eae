package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quotesearch/internal/domain"
)

type countingRetriever struct {
	calls int
	err   error
}

func (r *countingRetriever) Retrieve(ctx context.Context, q domain.Query) (domain.Result, error) {
	r.calls++
	if r.err != nil {
		return domain.Result{}, r.err
	}
	return domain.Result{
		Query:     q.Text,
		Namespace: q.Namespace,
		Matches:   []domain.Match{{ID: q.Namespace + "/" + q.Text, Score: 1}},
	}, nil
}

func TestCachedRetriever_HitAndKeying(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))
	ctx := context.Background()

	q := domain.Query{Text: "doh", TopK: 5, Namespace: ""}
	r.Retrieve(ctx, q)
	res, err := r.Retrieve(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", inner.calls)
	}
	if len(res.Matches) != 1 || res.Matches[0].ID != "/doh" {
		t.Errorf("unexpected cached result %+v", res)
	}

	r.Retrieve(ctx, domain.Query{Text: "doh", TopK: 5, Namespace: "A"})
	r.Retrieve(ctx, domain.Query{Text: "doh", TopK: 3, Namespace: ""})
	if inner.calls != 3 {
		t.Errorf("namespace and top_k must be part of the key, got %d calls", inner.calls)
	}
}

func TestCachedRetriever_InvalidateOnUpsert(t *testing.T) {
	inner := &countingRetriever{}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))
	ctx := context.Background()
	q := domain.Query{Text: "doh", TopK: 1}

	r.Retrieve(ctx, q)
	r.Invalidate()
	r.Retrieve(ctx, q)

	if inner.calls != 2 {
		t.Errorf("expected invalidation to force a refetch, got %d calls", inner.calls)
	}
}

func TestCachedRetriever_ErrorsNotCached(t *testing.T) {
	inner := &countingRetriever{err: errors.New("index down")}
	r := NewCachedRetriever(inner, NewQueryCache(10, time.Minute))
	ctx := context.Background()
	q := domain.Query{Text: "doh", TopK: 1}

	r.Retrieve(ctx, q)
	r.Retrieve(ctx, q)
	if inner.calls != 2 {
		t.Errorf("errors must not be cached, got %d calls", inner.calls)
	}
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	q := domain.Query{Text: "doh", TopK: 1}
	c.Put(q, c.Generation(), domain.Result{Query: "doh"})

	if _, ok := c.Get(q); !ok {
		t.Fatal("expected hit before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(q); ok {
		t.Error("expected miss after TTL")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry not removed, size %d", c.Size())
	}
}

func TestQueryCache_Eviction(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	gen := c.Generation()
	a := domain.Query{Text: "a", TopK: 1}
	b := domain.Query{Text: "b", TopK: 1}
	d := domain.Query{Text: "d", TopK: 1}

	c.Put(a, gen, domain.Result{Query: "a"})
	c.Put(b, gen, domain.Result{Query: "b"})
	c.Get(a) // a becomes most recent
	c.Put(d, gen, domain.Result{Query: "d"})

	if _, ok := c.Get(b); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get(a); !ok {
		t.Error("expected recently used entry to survive")
	}
}

func TestQueryCache_StalePutDropped(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	q := domain.Query{Text: "a", TopK: 1}

	gen := c.Generation()
	c.Invalidate()
	c.Put(q, gen, domain.Result{Query: "a"})

	if _, ok := c.Get(q); ok {
		t.Error("result computed before invalidation must not be cached")
	}
}

// checkOrder asserts every LRU key has an entry and vice versa.
func checkOrder(t *testing.T, c *QueryCache) {
	t.Helper()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.order) != len(c.entries) {
		t.Fatalf("order has %d keys, entries has %d", len(c.order), len(c.entries))
	}
	for _, k := range c.order {
		if _, ok := c.entries[k]; !ok {
			t.Fatalf("order key %s has no entry", k)
		}
	}
}

func TestQueryCache_ConcurrentGetInvalidate(t *testing.T) {
	c := NewQueryCache(4, time.Minute)
	queries := make([]domain.Query, 8)
	for i := range queries {
		queries[i] = domain.Query{Text: fmt.Sprintf("q%d", i), TopK: 1}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q := queries[(w+i)%len(queries)]
				switch i % 5 {
				case 0:
					c.Invalidate()
				case 1, 2:
					c.Put(q, c.Generation(), domain.Result{Query: q.Text})
				default:
					c.Get(q)
				}
			}
		}(w)
	}
	wg.Wait()
	checkOrder(t, c)

	// a full cache still holds maxSize live entries after churn
	gen := c.Generation()
	for _, q := range queries[:4] {
		c.Put(q, gen, domain.Result{Query: q.Text})
	}
	for _, q := range queries[:4] {
		if _, ok := c.Get(q); !ok {
			t.Errorf("expected %s to be cached", q.Text)
		}
	}
	checkOrder(t, c)
}
