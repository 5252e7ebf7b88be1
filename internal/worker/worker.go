package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"yojana-orchestrator/internal/domain"
	"yojana-orchestrator/internal/infra/logger"
	"yojana-orchestrator/internal/usecase"
)

const (
	defaultPollInterval = 5 * time.Second
	jobTimeout          = 2 * time.Minute
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Config tunes the ingest worker. EmbedRate caps how many upserts per second
// the worker starts, so a bulk seed cannot saturate the embedding endpoint
// that live queries share.
type Config struct {
	PollInterval time.Duration
	EmbedRate    float64
	EmbedBurst   int
}

// IngestWorker drains the ingest job queue. One job embeds and stores a
// single scheme document.
type IngestWorker struct {
	jobRepo  domain.IngestJobRepository
	ingest   usecase.IngestSchemeUsecase
	limiter  *rate.Limiter
	logger   *slog.Logger
	jobLog   *logger.ContextLogger
	poll     time.Duration
	stopChan chan struct{}
	backoff  time.Duration
}

func NewIngestWorker(
	jobRepo domain.IngestJobRepository,
	ingest usecase.IngestSchemeUsecase,
	cfg Config,
	log *slog.Logger,
) *IngestWorker {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	limit := rate.Limit(cfg.EmbedRate)
	if cfg.EmbedRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.EmbedBurst
	if burst <= 0 {
		burst = 1
	}
	return &IngestWorker{
		jobRepo:  jobRepo,
		ingest:   ingest,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   log,
		jobLog:   logger.NewContextLogger("ingest-worker"),
		poll:     poll,
		stopChan: make(chan struct{}),
	}
}

func (w *IngestWorker) Start() {
	w.logger.Info("Starting IngestWorker", "poll_interval", w.poll.String())
	go w.run()
}

func (w *IngestWorker) Stop() {
	w.logger.Info("Stopping IngestWorker")
	close(w.stopChan)
}

func (w *IngestWorker) run() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.poll)
			}
		}
	}
}

func (w *IngestWorker) processNextJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := w.jobRepo.AcquireNext(ctx)
	if err != nil {
		w.logger.Error("Failed to acquire next job", "error", err)
		return
	}
	if job == nil {
		return // No jobs
	}

	ctx = logger.WithJobID(ctx, job.ID.String())
	ctx = logger.WithSchemeName(ctx, job.SchemeName)
	log := w.jobLog.WithContext(ctx)
	log.Info("Processing ingest job", "theme", job.Theme)

	processErr := w.processJob(ctx, job)

	status := domain.IngestJobStatusCompleted
	var errMsg *string
	if processErr != nil {
		status = domain.IngestJobStatusFailed
		msg := processErr.Error()
		errMsg = &msg
		w.backoff = w.nextBackoff(w.backoff)
		log.Warn("Worker backing off", "backoff", w.backoff.String(), "error", processErr)
	} else {
		w.backoff = 0
		log.Info("Ingest job completed")
	}

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		log.Error("Failed to update job status", "error", err)
	}
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := w.ingest.Upsert(ctx, usecase.IngestSchemeInput{
		SchemeName: job.SchemeName,
		Theme:      job.Theme,
		Ministry:   job.Ministry,
		URL:        job.URL,
		Text:       job.Text,
	})
	return err
}

func (w *IngestWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
