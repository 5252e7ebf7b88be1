package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ingest job statuses.
const (
	IngestJobStatusNew        = "new"
	IngestJobStatusProcessing = "processing"
	IngestJobStatusCompleted  = "completed"
	IngestJobStatusFailed     = "failed"
)

// IngestJob is a queued request to (re)index one scheme source text.
type IngestJob struct {
	ID           uuid.UUID
	SchemeName   string
	Theme        string
	Ministry     string
	URL          string
	Text         string
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IngestJobRepository is the persistent ingest queue.
type IngestJobRepository interface {
	// Enqueue inserts a new job with status "new".
	Enqueue(ctx context.Context, job *IngestJob) error

	// AcquireNext atomically claims the oldest "new" job, moving it to
	// "processing". Returns nil, nil when the queue is empty.
	AcquireNext(ctx context.Context) (*IngestJob, error)

	// UpdateStatus finalizes a claimed job.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
}
