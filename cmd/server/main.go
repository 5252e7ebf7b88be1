package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yojana-orchestrator/internal/adapter/httpapi"
	"yojana-orchestrator/internal/di"
	"yojana-orchestrator/internal/infra"
	"yojana-orchestrator/internal/infra/config"
	"yojana-orchestrator/internal/infra/logger"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Telemetry (before the logger so the OTel log bridge has
	// a provider to attach to)
	if cfg.Telemetry.Enabled {
		shutdown, err := infra.SetupTelemetry(context.Background(), cfg.Telemetry.ServiceName, cfg.Env)
		if err != nil {
			slog.Error("failed to set up telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// 3. Initialize Logger
	log := logger.NewWithOTel(cfg.Telemetry.Enabled)
	slog.SetDefault(log)

	// 4. Initialize DB
	dbPool, err := infra.NewPostgresPool(context.Background(), cfg.DB.DSN(), cfg.DB.MaxConns, cfg.DB.MinConns)
	if err != nil {
		log.Error("failed to connect to db", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// 5. Wire Components
	components, err := di.NewApplicationComponents(cfg, dbPool, log)
	if err != nil {
		log.Error("failed to wire components", "error", err)
		os.Exit(1)
	}

	// 6. Start Ingest Worker
	components.Worker.Start()
	defer func() {
		log.Info("Stopping worker...")
		components.Worker.Stop()
	}()

	// 7. Initialize HTTP Handlers
	handler := httpapi.NewHandler(
		components.RetrieveUsecase,
		components.AnswerUsecase,
		components.JobRepo,
		components.ChunkRepo,
		dbPool,
		log,
	)
	e, err := httpapi.NewServer(handler, log)
	if err != nil {
		log.Error("failed to build http server", "error", err)
		os.Exit(1)
	}

	// 8. Start Server (h2c so gRPC-style clients and curl both work on one port)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: httpapi.WrapH2C(e),
	}
	go func() {
		log.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
