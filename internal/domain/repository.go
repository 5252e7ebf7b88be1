package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// SchemeSource represents one ingested source text: a scheme page section for
// a single theme. The source hash makes re-ingestion idempotent.
type SchemeSource struct {
	ID              uuid.UUID
	SchemeName      string
	Theme           string
	Ministry        string
	URL             string
	SourceHash      string
	ChunkerVersion  string
	EmbedderVersion string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SchemeChunk is a persisted chunk of a scheme source, with its embedding.
// Scheme metadata is denormalized onto the chunk so filtered search needs no
// join.
type SchemeChunk struct {
	ID         uuid.UUID
	SourceID   uuid.UUID
	Ordinal    int
	SchemeName string
	Theme      string
	Content    string
	Ministry   string
	URL        string
	Embedding  pgvector.Vector
	CreatedAt  time.Time
}

// SchemeSourceRepository manages scheme source records.
type SchemeSourceRepository interface {
	// GetBySchemeTheme retrieves a source by its natural key.
	// Returns nil, nil if not found.
	GetBySchemeTheme(ctx context.Context, schemeName, theme string) (*SchemeSource, error)

	// Create inserts a new source record.
	Create(ctx context.Context, src *SchemeSource) error

	// Update persists hash and version changes for an existing source.
	Update(ctx context.Context, src *SchemeSource) error
}

// SchemeChunkRepository manages persisted chunks.
type SchemeChunkRepository interface {
	// BulkInsert inserts chunks in one round trip.
	BulkInsert(ctx context.Context, chunks []SchemeChunk) error

	// DeleteBySource removes all chunks of a source, returning the count.
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
}

// TransactionManager defines the interface for handling database transactions.
type TransactionManager interface {
	// RunInTx executes the given function within a transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
