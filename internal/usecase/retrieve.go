package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"quotesearch/internal/domain"
	"quotesearch/internal/port"
)

// Caller-facing failure details.
const (
	detailTextRequired      = "text is required"
	detailNamespaceDenied   = "namespace not allowed"
	detailNoModel           = "embedding model not initialized"
	detailNoIndex           = "vector index not initialized"
	detailModelUnavailable  = "embedding model unavailable"
	detailIndexUnavailable  = "vector index unavailable"
	detailDimensionMismatch = "embedding dimension does not match index dimension"
	detailTimeout           = "request timed out"
	detailCanceled          = "request canceled"
)

// RetrieveOptions configures a RetrievePipeline.
type RetrieveOptions struct {
	DefaultTopK     int
	MaxTopK         int           // 0 = no upper bound
	Namespaces      []string      // allowed namespace patterns, empty = any
	Timeout         time.Duration // bounds encode+query, 0 = caller deadline only
	MaxInFlight     int           // concurrent index queries, 0 = unbounded
	TrustIndexOrder bool
}

// RetrievePipeline turns query text into ranked matches: validate, encode,
// query the index, then order and truncate. The embedder and index are shared
// read-only by all requests.
type RetrievePipeline struct {
	embedder port.Embedder
	index    port.VectorIndex
	opts     RetrieveOptions
	policy   *NamespacePolicy
	inFlight *semaphore.Weighted
	encodes  singleflight.Group
	logger   *slog.Logger
}

// NewRetrievePipeline creates a pipeline. A nil embedder or index is accepted
// and reported per request as ServiceUnavailable.
func NewRetrievePipeline(embedder port.Embedder, index port.VectorIndex, opts RetrieveOptions, logger *slog.Logger) (*RetrievePipeline, error) {
	if opts.DefaultTopK < 1 {
		opts.DefaultTopK = domain.DefaultTopK
	}
	if opts.MaxTopK > 0 && opts.MaxTopK < opts.DefaultTopK {
		opts.MaxTopK = opts.DefaultTopK
	}

	policy, err := NewNamespacePolicy(opts.Namespaces)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &RetrievePipeline{
		embedder: embedder,
		index:    index,
		opts:     opts,
		policy:   policy,
		logger:   logger,
	}
	if opts.MaxInFlight > 0 {
		p.inFlight = semaphore.NewWeighted(int64(opts.MaxInFlight))
	}
	return p, nil
}

// DefaultTopK returns the top_k used when a query does not set a valid one.
func (p *RetrievePipeline) DefaultTopK() int {
	return p.opts.DefaultTopK
}

// Retrieve runs one query. Failures are *domain.Error values of kind
// BadRequest or ServiceUnavailable; zero matches is a successful result.
func (p *RetrievePipeline) Retrieve(ctx context.Context, q domain.Query) (domain.Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return domain.Result{}, domain.BadRequest(detailTextRequired)
	}
	if !p.policy.Allows(q.Namespace) {
		return domain.Result{}, domain.BadRequest(detailNamespaceDenied)
	}
	topK := p.topK(q.TopK)

	if p.embedder == nil {
		return domain.Result{}, domain.Unavailable(detailNoModel, domain.ErrModelUnavailable)
	}
	if p.index == nil {
		return domain.Result{}, domain.Unavailable(detailNoIndex, domain.ErrIndexUnavailable)
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	start := time.Now()

	vector, err := p.encode(ctx, text)
	if err != nil {
		return domain.Result{}, p.fail(q, "encode", err)
	}

	if dim := p.index.Dimension(); dim > 0 && len(vector) != dim {
		return domain.Result{}, p.fail(q, "encode", domain.ErrDimensionMismatch)
	}

	matches, err := p.query(ctx, vector, topK, q.Namespace)
	if err != nil {
		return domain.Result{}, p.fail(q, "query", err)
	}

	matches = p.assemble(matches, topK)

	p.logger.Debug("retrieved",
		"namespace", q.Namespace,
		"top_k", topK,
		"matches", len(matches),
		"duration", time.Since(start),
	)

	return domain.Result{
		Query:     q.Text,
		Namespace: q.Namespace,
		Matches:   matches,
	}, nil
}

func (p *RetrievePipeline) topK(requested int) int {
	if requested < 1 {
		return p.opts.DefaultTopK
	}
	if p.opts.MaxTopK > 0 && requested > p.opts.MaxTopK {
		return p.opts.MaxTopK
	}
	return requested
}

// encode coalesces identical concurrent encodes. The shared call outlives a
// canceled caller but not the request deadline. The shared vector must not be
// modified.
func (p *RetrievePipeline) encode(ctx context.Context, text string) ([]float32, error) {
	ch := p.encodes.DoChan(text, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			shared, cancel = context.WithDeadline(shared, deadline)
			defer cancel()
		}
		return p.embedder.Embed(shared, text)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *RetrievePipeline) query(ctx context.Context, vector []float32, topK int, namespace string) ([]domain.Match, error) {
	if p.inFlight != nil {
		if err := p.inFlight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.inFlight.Release(1)
	}
	return p.index.Query(ctx, vector, topK, namespace)
}

// assemble orders matches by descending score and truncates to topK. Index
// order is kept unless it is untrusted or visibly unsorted, in which case a
// stable sort preserves the index order among equal scores.
func (p *RetrievePipeline) assemble(matches []domain.Match, topK int) []domain.Match {
	if matches == nil {
		matches = []domain.Match{}
	}

	sorted := sort.SliceIsSorted(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if !p.opts.TrustIndexOrder || !sorted {
		if !sorted {
			p.logger.Warn("index returned unsorted matches, re-sorting", "matches", len(matches))
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Score > matches[j].Score
		})
	}

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// fail converts a component error into a caller-safe *domain.Error and logs
// the cause.
func (p *RetrievePipeline) fail(q domain.Query, stage string, err error) error {
	var out *domain.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out = domain.Unavailable(detailTimeout, err)
	case errors.Is(err, context.Canceled):
		out = domain.Unavailable(detailCanceled, err)
	case errors.Is(err, domain.ErrEmptyText):
		out = domain.BadRequest(detailTextRequired)
	case errors.Is(err, domain.ErrDimensionMismatch):
		out = domain.Unavailable(detailDimensionMismatch, err)
	case stage == "encode":
		out = domain.Unavailable(detailModelUnavailable, err)
	default:
		out = domain.Unavailable(detailIndexUnavailable, err)
	}

	p.logger.Error("retrieval failed",
		"stage", stage,
		"namespace", q.Namespace,
		"kind", out.Kind.String(),
		"error", err,
	)
	return out
}
