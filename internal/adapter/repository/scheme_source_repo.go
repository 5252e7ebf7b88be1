package repository

import (
	"context"
	"errors"
	"fmt"

	"yojana-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type schemeSourceRepository struct {
	pool *pgxpool.Pool
}

// NewSchemeSourceRepository creates a SchemeSourceRepository on the pool.
func NewSchemeSourceRepository(pool *pgxpool.Pool) domain.SchemeSourceRepository {
	return &schemeSourceRepository{pool: pool}
}

func (r *schemeSourceRepository) getExecutor(ctx context.Context) interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
} {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *schemeSourceRepository) GetBySchemeTheme(ctx context.Context, schemeName, theme string) (*domain.SchemeSource, error) {
	query := `
		SELECT id, scheme_name, theme, ministry, url, source_hash, chunker_version, embedder_version, created_at, updated_at
		FROM scheme_sources
		WHERE scheme_name = $1 AND theme = $2
	`
	row := r.getExecutor(ctx).QueryRow(ctx, query, schemeName, theme)

	var src domain.SchemeSource
	err := row.Scan(&src.ID, &src.SchemeName, &src.Theme, &src.Ministry, &src.URL,
		&src.SourceHash, &src.ChunkerVersion, &src.EmbedderVersion, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &src, nil
}

func (r *schemeSourceRepository) Create(ctx context.Context, src *domain.SchemeSource) error {
	query := `
		INSERT INTO scheme_sources (id, scheme_name, theme, ministry, url, source_hash, chunker_version, embedder_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		src.ID, src.SchemeName, src.Theme, src.Ministry, src.URL,
		src.SourceHash, src.ChunkerVersion, src.EmbedderVersion, src.CreatedAt, src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

func (r *schemeSourceRepository) Update(ctx context.Context, src *domain.SchemeSource) error {
	query := `
		UPDATE scheme_sources
		SET ministry = $1, url = $2, source_hash = $3, chunker_version = $4, embedder_version = $5, updated_at = $6
		WHERE id = $7
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query,
		src.Ministry, src.URL, src.SourceHash, src.ChunkerVersion, src.EmbedderVersion, src.UpdatedAt, src.ID)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}
