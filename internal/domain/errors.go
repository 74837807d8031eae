package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the embedding model failed to initialize or
	// cannot be reached.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrIndexUnavailable covers connectivity and configuration failures of
	// the vector index.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch means a vector length differs from the index
	// dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyText is returned by embedders for empty or whitespace-only input.
	ErrEmptyText = errors.New("empty text")
)

// Kind classifies a retrieval failure.
type Kind int

const (
	// KindBadRequest is a user-correctable input problem.
	KindBadRequest Kind = iota + 1
	// KindServiceUnavailable is an operational failure of the model or index.
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the retrieval pipeline. Detail is safe
// to show to callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest builds a KindBadRequest error.
func BadRequest(detail string) *Error {
	return &Error{Kind: KindBadRequest, Detail: detail}
}

// Unavailable builds a KindServiceUnavailable error wrapping cause.
func Unavailable(detail string, cause error) *Error {
	return &Error{Kind: KindServiceUnavailable, Detail: detail, Err: cause}
}

// KindOf returns the Kind of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// DetailOf returns the caller-safe detail of err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal error"
}
