package domain

import "context"

// SearchFilter narrows vector search and scroll to a metadata subset.
// Empty fields mean no constraint. Values that match nothing yield an empty
// result, not an error; unknown scheme names are indistinguishable from
// schemes with no indexed content.
type SearchFilter struct {
	SchemeNames []string
	Theme       string
}

// IsZero reports whether the filter constrains nothing.
func (f SearchFilter) IsZero() bool {
	return len(f.SchemeNames) == 0 && f.Theme == ""
}

// VectorHit is a semantic search result. Score is cosine similarity
// normalized into [0, 1].
type VectorHit struct {
	Document SchemeDocument
	Score    float64
}

// VectorIndex is the read side of the scheme corpus: dense search plus the
// scan and catalog operations the retrieval stages need.
type VectorIndex interface {
	// Search returns up to limit documents nearest to the query vector,
	// best first, restricted by filter.
	Search(ctx context.Context, queryVector []float32, filter SearchFilter, limit int) ([]VectorHit, error)

	// Scroll returns every document matching filter, paging internally.
	// Order is stable across calls for an unchanged corpus.
	Scroll(ctx context.Context, filter SearchFilter) ([]SchemeDocument, error)

	// Count returns the number of indexed documents. Used to detect corpus
	// version changes.
	Count(ctx context.Context) (int, error)

	// SchemeNames returns the distinct canonical scheme names in the corpus.
	SchemeNames(ctx context.Context) ([]string, error)
}

// SchemeCatalog is the subset of VectorIndex the query decomposer needs.
type SchemeCatalog interface {
	SchemeNames(ctx context.Context) ([]string, error)
}
