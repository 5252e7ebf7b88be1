package domain

import (
	"context"
)

// VectorEncoder defines the interface for generating embeddings. Encode
// preserves input order: result[i] is the vector for texts[i].
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
