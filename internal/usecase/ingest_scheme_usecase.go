package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yojana-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
)

const (
	// embedBatchSize bounds one encoder call. Scheme sections chunk into a
	// few dozen pieces at most.
	embedBatchSize = 32
	// embedConcurrency bounds in-flight encoder calls per upsert.
	embedConcurrency = 4
)

// IngestSchemeInput is one scheme source text to (re)index.
type IngestSchemeInput struct {
	SchemeName string
	Theme      string
	Ministry   string
	URL        string
	Text       string
}

// IngestSchemeResult reports what the upsert did.
type IngestSchemeResult struct {
	SourceID      uuid.UUID
	Skipped       bool
	ChunkCount    int
	ReplacedCount int64
}

// IngestSchemeUsecase indexes scheme source texts. Upsert is idempotent:
// re-submitting an unchanged source is a no-op.
type IngestSchemeUsecase interface {
	Upsert(ctx context.Context, input IngestSchemeInput) (*IngestSchemeResult, error)
}

type ingestSchemeUsecase struct {
	sources   domain.SchemeSourceRepository
	chunks    domain.SchemeChunkRepository
	txManager domain.TransactionManager
	hasher    domain.SourceHashPolicy
	chunker   domain.Chunker
	encoder   domain.VectorEncoder
	logger    *slog.Logger
}

// NewIngestSchemeUsecase wires the ingestion dependencies.
func NewIngestSchemeUsecase(
	sources domain.SchemeSourceRepository,
	chunks domain.SchemeChunkRepository,
	txManager domain.TransactionManager,
	hasher domain.SourceHashPolicy,
	chunker domain.Chunker,
	encoder domain.VectorEncoder,
	logger *slog.Logger,
) IngestSchemeUsecase {
	return &ingestSchemeUsecase{
		sources:   sources,
		chunks:    chunks,
		txManager: txManager,
		hasher:    hasher,
		chunker:   chunker,
		encoder:   encoder,
		logger:    logger,
	}
}

// Upsert chunks and embeds the source text, then replaces the scheme's
// stored chunks in one transaction. A source whose hash, chunker version and
// embedder version all match the stored record is skipped.
func (u *ingestSchemeUsecase) Upsert(ctx context.Context, input IngestSchemeInput) (*IngestSchemeResult, error) {
	schemeName := strings.TrimSpace(input.SchemeName)
	theme := strings.TrimSpace(input.Theme)
	text := strings.TrimSpace(input.Text)
	if schemeName == "" {
		return nil, errors.New("scheme name is required")
	}
	if theme == "" {
		return nil, errors.New("theme is required")
	}
	if text == "" {
		return nil, errors.New("source text is required")
	}

	sourceHash := u.hasher.Compute(schemeName, theme, text)

	existing, err := u.sources.GetBySchemeTheme(ctx, schemeName, theme)
	if err != nil {
		return nil, fmt.Errorf("failed to load source record: %w", err)
	}
	if existing != nil && existing.SourceHash == sourceHash &&
		existing.ChunkerVersion == string(u.chunker.Version()) &&
		existing.EmbedderVersion == u.encoder.Version() {
		u.logger.Info("ingest_skipped_unchanged",
			slog.String("scheme_name", schemeName),
			slog.String("theme", theme))
		return &IngestSchemeResult{SourceID: existing.ID, Skipped: true}, nil
	}

	chunks, err := u.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk source text: %w", err)
	}
	if len(chunks) == 0 {
		return nil, errors.New("source text produced no chunks")
	}

	embeddings, err := u.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sourceID := uuid.New()
	if existing != nil {
		sourceID = existing.ID
	}

	rows := make([]domain.SchemeChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = domain.SchemeChunk{
			ID:         uuid.New(),
			SourceID:   sourceID,
			Ordinal:    c.Ordinal,
			SchemeName: schemeName,
			Theme:      theme,
			Content:    c.Content,
			Ministry:   strings.TrimSpace(input.Ministry),
			URL:        strings.TrimSpace(input.URL),
			Embedding:  pgvector.NewVector(embeddings[i]),
			CreatedAt:  now,
		}
	}

	result := &IngestSchemeResult{SourceID: sourceID, ChunkCount: len(rows)}
	err = u.txManager.RunInTx(ctx, func(ctx context.Context) error {
		if existing == nil {
			src := &domain.SchemeSource{
				ID:              sourceID,
				SchemeName:      schemeName,
				Theme:           theme,
				Ministry:        strings.TrimSpace(input.Ministry),
				URL:             strings.TrimSpace(input.URL),
				SourceHash:      sourceHash,
				ChunkerVersion:  string(u.chunker.Version()),
				EmbedderVersion: u.encoder.Version(),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := u.sources.Create(ctx, src); err != nil {
				return fmt.Errorf("failed to create source record: %w", err)
			}
		} else {
			existing.Ministry = strings.TrimSpace(input.Ministry)
			existing.URL = strings.TrimSpace(input.URL)
			existing.SourceHash = sourceHash
			existing.ChunkerVersion = string(u.chunker.Version())
			existing.EmbedderVersion = u.encoder.Version()
			existing.UpdatedAt = now
			if err := u.sources.Update(ctx, existing); err != nil {
				return fmt.Errorf("failed to update source record: %w", err)
			}
			replaced, err := u.chunks.DeleteBySource(ctx, sourceID)
			if err != nil {
				return fmt.Errorf("failed to delete stale chunks: %w", err)
			}
			result.ReplacedCount = replaced
		}

		if err := u.chunks.BulkInsert(ctx, rows); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("scheme_ingested",
		slog.String("scheme_name", schemeName),
		slog.String("theme", theme),
		slog.Int("chunks", result.ChunkCount),
		slog.Int64("replaced", result.ReplacedCount))
	return result, nil
}

// embedAll encodes chunk contents in bounded parallel batches. Embedding
// runs before the transaction opens so the connection pool never waits on
// the encoder.
func (u *ingestSchemeUsecase) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	embeddings := make([][]float32, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(contents); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(contents) {
			end = len(contents)
		}
		g.Go(func() error {
			vecs, err := u.encoder.Encode(gctx, contents[start:end])
			if err != nil {
				return fmt.Errorf("failed to encode chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), end-start)
			}
			copy(embeddings[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}
