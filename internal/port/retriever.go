package port

import (
	"context"

	"quotesearch/internal/domain"
)

// Retriever answers text queries with ranked matches.
type Retriever interface {
	Retrieve(ctx context.Context, q domain.Query) (domain.Result, error)
}
