package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalUnavailable reports that every retrieval stage failed for a
	// request. An empty result set is not this error; it is a valid outcome.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable: all stages failed")

	// ErrEmptyQuery reports a blank query after trimming.
	ErrEmptyQuery = errors.New("query is empty")
)

// UpstreamError wraps a transient failure from an external dependency
// (vector store, embedder, LLM). Stages recover from it by falling through
// to the next stage; only when nothing recovers does it surface, wrapped in
// ErrRetrievalUnavailable.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError tags err with the operation that produced it.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
