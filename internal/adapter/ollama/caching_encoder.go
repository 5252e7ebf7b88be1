package ollama

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"yojana-orchestrator/internal/domain"
)

const defaultEncoderCacheSize = 2048

// CachingEncoder memoizes embeddings in an LRU keyed by encoder version and
// text. Query embedding dominates retrieval latency for repeat questions, and
// vectors for a fixed model never go stale, so a plain size-bounded cache is
// enough.
type CachingEncoder struct {
	inner domain.VectorEncoder
	cache *lru.Cache[string, []float32]
}

// NewCachingEncoder wraps inner with an LRU of the given size. A non-positive
// size falls back to the default.
func NewCachingEncoder(inner domain.VectorEncoder, size int) (*CachingEncoder, error) {
	if size <= 0 {
		size = defaultEncoderCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachingEncoder{inner: inner, cache: cache}, nil
}

// Encode serves cached vectors where possible and forwards only the misses to
// the wrapped encoder in one batch. Result order matches input order.
func (c *CachingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(missTexts))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.cacheKey(missTexts[j]), vecs[j])
	}
	return out, nil
}

// cacheKey includes the encoder version so a model swap never serves vectors
// produced by the previous model.
func (c *CachingEncoder) cacheKey(text string) string {
	return c.inner.Version() + "|" + text
}

// Version reports the wrapped encoder's version.
func (c *CachingEncoder) Version() string {
	return c.inner.Version()
}

var _ domain.VectorEncoder = (*CachingEncoder)(nil)
