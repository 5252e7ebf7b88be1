// ABOUTME: This file provides context-aware structured logging for ingest and retrieval paths
// ABOUTME: Supports job ID, scheme name, and pipeline stage propagation with JSON output format
package logger

import (
	"context"
	"log/slog"
	"os"
)

type ContextKey string

const (
	// Business context keys for ingest/retrieval observability
	// These follow OpenTelemetry semantic conventions with 'yojana.' prefix
	JobIDKey          ContextKey = "yojana.job.id"
	SchemeNameKey     ContextKey = "yojana.scheme.name"
	PipelineStageKey  ContextKey = "yojana.pipeline.stage"
	RetrievalStageKey ContextKey = "yojana.retrieval.stage"
)

// ContextLogger enriches log records with business context carried on the
// request context.
type ContextLogger struct {
	logger      *slog.Logger
	serviceName string
}

// NewContextLogger creates a new context-aware logger
func NewContextLogger(serviceName string) *ContextLogger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)

	return &ContextLogger{
		logger:      slog.New(handler),
		serviceName: serviceName,
	}
}

// WithContext returns a logger with context values extracted and added as fields
func (cl *ContextLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := cl.logger.With("service", cl.serviceName)

	var fields []any

	if jobID := ctx.Value(JobIDKey); jobID != nil {
		fields = append(fields, string(JobIDKey), jobID)
	}
	if scheme := ctx.Value(SchemeNameKey); scheme != nil {
		fields = append(fields, string(SchemeNameKey), scheme)
	}
	if stage := ctx.Value(PipelineStageKey); stage != nil {
		fields = append(fields, string(PipelineStageKey), stage)
	}
	if stage := ctx.Value(RetrievalStageKey); stage != nil {
		fields = append(fields, string(RetrievalStageKey), stage)
	}

	if len(fields) > 0 {
		logger = logger.With(fields...)
	}

	return logger
}

// Context helper functions

// WithJobID adds an ingest job ID to context for observability
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// WithSchemeName adds the scheme being processed to context for observability
func WithSchemeName(ctx context.Context, scheme string) context.Context {
	return context.WithValue(ctx, SchemeNameKey, scheme)
}

// WithPipelineStage adds the ingest pipeline stage to context for observability
func WithPipelineStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, PipelineStageKey, stage)
}

// WithRetrievalStage adds the retrieval stage to context for observability
func WithRetrievalStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, RetrievalStageKey, stage)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
