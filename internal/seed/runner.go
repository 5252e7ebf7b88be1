package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"yojana-orchestrator/internal/adapter/corpus"
	"yojana-orchestrator/internal/infra/httpclient"
)

const requestTimeout = 30 * time.Second

// Config controls a seeding run.
type Config struct {
	OrchestratorURL   string
	CursorFile        string
	CorpusDir         string
	DryRun            bool
	RequestsPerSecond float64
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		OrchestratorURL:   "http://localhost:9020",
		CursorFile:        "seed-cursor.json",
		CorpusDir:         "corpus",
		RequestsPerSecond: 4,
	}
}

// Runner pushes corpus documents into the orchestrator's ingest queue,
// resuming from the cursor when a previous run was interrupted.
type Runner struct {
	cfg     Config
	client  *http.Client
	cursors *CursorManager
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Runner{
		cfg:     cfg,
		client:  httpclient.NewPooledClient(requestTimeout),
		cursors: NewCursorManager(cfg.CursorFile),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// GetCursor reads the current cursor without locking.
func (r *Runner) GetCursor() (Cursor, error) {
	return r.cursors.Load()
}

// ResetCursor clears the saved position.
func (r *Runner) ResetCursor() error {
	return r.cursors.Reset()
}

// Run enqueues every corpus entry past the cursor. The cursor advances after
// each accepted entry, so an interrupted run resumes where it stopped.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.cursors.Lock(); err != nil {
		return err
	}
	defer func() { _ = r.cursors.Unlock() }()

	cursor, err := r.cursors.Load()
	if err != nil {
		return err
	}

	entries, err := corpus.Load(r.cfg.CorpusDir)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	if !r.cfg.DryRun {
		if err := r.checkReady(ctx); err != nil {
			return err
		}
	}

	var processed, skipped int
	for _, entry := range entries {
		if !cursor.IsEmpty() && !afterCursor(entry, cursor) {
			skipped++
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if r.cfg.DryRun {
			r.logger.Info("would enqueue",
				slog.String("theme", entry.Theme),
				slog.String("scheme", entry.SchemeName))
			processed++
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := r.enqueue(ctx, entry); err != nil {
			return fmt.Errorf("enqueue %s/%s: %w", entry.Theme, entry.SchemeName, err)
		}

		cursor.LastTheme = entry.Theme
		cursor.LastScheme = entry.SchemeName
		cursor.ProcessedCount++
		if err := r.cursors.Save(cursor); err != nil {
			return err
		}
		processed++
	}

	r.logger.Info("seed completed",
		slog.Int("processed", processed),
		slog.Int("skipped", skipped),
		slog.Bool("dry_run", r.cfg.DryRun))
	return nil
}

// afterCursor reports whether the entry sorts strictly after the cursor
// position. Comparing positions instead of matching the exact entry keeps
// resume working when corpus files were added or removed between runs.
func afterCursor(entry corpus.Entry, cursor Cursor) bool {
	if entry.Theme != cursor.LastTheme {
		return entry.Theme > cursor.LastTheme
	}
	return entry.SchemeName > cursor.LastScheme
}

func (r *Runner) checkReady(ctx context.Context) error {
	url := strings.TrimRight(r.cfg.OrchestratorURL, "/") + "/readyz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create readiness request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator not ready: status %d", resp.StatusCode)
	}
	return nil
}

type ingestPayload struct {
	SchemeName string `json:"scheme_name"`
	Theme      string `json:"theme"`
	Ministry   string `json:"ministry,omitempty"`
	URL        string `json:"url,omitempty"`
	Text       string `json:"text"`
}

func (r *Runner) enqueue(ctx context.Context, entry corpus.Entry) error {
	payload := ingestPayload{
		SchemeName: entry.SchemeName,
		Theme:      entry.Theme,
		Ministry:   entry.Ministry,
		URL:        entry.OfficialURL,
		Text:       entry.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := strings.TrimRight(r.cfg.OrchestratorURL, "/") + "/internal/rag/ingest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
