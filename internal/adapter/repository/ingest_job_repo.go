package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yojana-orchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IngestJobRepository is the Postgres-backed ingest queue. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never pick the same job.
type IngestJobRepository struct {
	pool *pgxpool.Pool
}

// NewIngestJobRepository creates an IngestJobRepository on the pool.
func NewIngestJobRepository(pool *pgxpool.Pool) *IngestJobRepository {
	return &IngestJobRepository{pool: pool}
}

func (r *IngestJobRepository) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	query := `
		INSERT INTO ingest_jobs (id, scheme_name, theme, ministry, url, source_text, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID, job.SchemeName, job.Theme, job.Ministry, job.URL, job.Text,
		job.Status, job.ErrorMessage, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) AcquireNext(ctx context.Context) (*domain.IngestJob, error) {
	query := `
		WITH next_job AS (
			SELECT id
			FROM ingest_jobs
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ingest_jobs
		SET status = 'processing', updated_at = $1
		FROM next_job
		WHERE ingest_jobs.id = next_job.id
		RETURNING ingest_jobs.id, ingest_jobs.scheme_name, ingest_jobs.theme, ingest_jobs.ministry,
		          ingest_jobs.url, ingest_jobs.source_text, ingest_jobs.status, ingest_jobs.error_message,
		          ingest_jobs.created_at, ingest_jobs.updated_at
	`

	var job domain.IngestJob
	err := r.pool.QueryRow(ctx, query, time.Now()).Scan(
		&job.ID, &job.SchemeName, &job.Theme, &job.Ministry, &job.URL, &job.Text,
		&job.Status, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire next job: %w", err)
	}
	return &job, nil
}

func (r *IngestJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	query := `
		UPDATE ingest_jobs
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.pool.Exec(ctx, query, status, errorMessage, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
