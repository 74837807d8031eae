package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"quotesearch/internal/domain"
	"quotesearch/internal/port"
)

// QueryCache is a bounded LRU of retrieval results with a TTL. Invalidate
// bumps a generation counter so entries computed before an upsert are never
// served after it.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
	now      func() time.Time
}

type cacheEntry struct {
	result    domain.Result
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(q domain.Query) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(q.TopK))
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(len(q.Namespace)))
	h.Write(n[:])
	h.Write([]byte(q.Namespace))
	h.Write([]byte(q.Text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Get returns the cached result for q and marks it most recently used.
func (c *QueryCache) Get(q domain.Query) (domain.Result, bool) {
	key := cacheKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return domain.Result{}, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != c.indexGen {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return domain.Result{}, false
	}

	c.moveToEnd(key)
	return cloneResult(entry.result), true
}

// Put stores result for q. gen must be the Generation observed before the
// result was computed; stale results are dropped.
func (c *QueryCache) Put(q domain.Query, gen uint64, result domain.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.indexGen {
		return
	}

	key := cacheKey(q)
	entry := &cacheEntry{
		result:    cloneResult(result),
		timestamp: c.now(),
		indexGen:  gen,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Generation returns the current index generation.
func (c *QueryCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexGen
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// cloneResult copies the match slice so cached results cannot be mutated
// through a returned value.
func cloneResult(r domain.Result) domain.Result {
	matches := make([]domain.Match, len(r.Matches))
	copy(matches, r.Matches)
	r.Matches = matches
	return r
}

// CachedRetriever serves repeated queries from a QueryCache. Only successful
// results are cached.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

func NewCachedRetriever(retriever port.Retriever, cache *QueryCache) *CachedRetriever {
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Retrieve(ctx context.Context, q domain.Query) (domain.Result, error) {
	if result, hit := r.cache.Get(q); hit {
		return result, nil
	}

	gen := r.cache.Generation()
	result, err := r.retriever.Retrieve(ctx, q)
	if err != nil {
		return domain.Result{}, err
	}

	r.cache.Put(q, gen, result)

	return result, nil
}

// Invalidate drops all cached results. Called after every upsert.
func (r *CachedRetriever) Invalidate() {
	r.cache.Invalidate()
}
