package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yojana-orchestrator/internal/seed"
)

var (
	version = "dev"

	// Global flags
	verbose    bool
	cursorFile string

	// Run command flags
	corpusDir string
	rps       float64
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Seed scheme documents into the orchestrator",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the seeding process",
	Long: `Run the seeding process to enqueue scheme documents for indexing.

Each corpus file is posted to the orchestrator's ingest endpoint; the ingest
worker embeds and stores them. The process can be resumed from where it left
off using cursor tracking.

Examples:
  # Seed the full corpus (resumes from cursor)
  seed run --corpus ./corpus

  # Dry run to see what would be enqueued
  seed run --corpus ./corpus --dry-run

  # Throttle requests for a busy orchestrator
  seed run --corpus ./corpus --rps 1`,
	RunE: runSeed,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current cursor status",
	RunE:  showStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset-cursor",
	Short: "Reset the cursor to start from beginning",
	RunE:  resetCursor,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cursorFile, "cursor-file", "seed-cursor.json", "cursor file path")

	runCmd.Flags().StringVar(&corpusDir, "corpus", "corpus", "corpus directory (theme subdirectories with scheme JSON files)")
	runCmd.Flags().Float64Var(&rps, "rps", 4, "ingest requests per second")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be enqueued without sending anything")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func buildConfig() seed.Config {
	cfg := seed.DefaultConfig()
	if url := os.Getenv("ORCHESTRATOR_URL"); url != "" {
		cfg.OrchestratorURL = url
	}
	cfg.CursorFile = cursorFile
	cfg.CorpusDir = corpusDir
	cfg.DryRun = dryRun
	cfg.RequestsPerSecond = rps
	return cfg
}

func runSeed(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := buildConfig()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting seed",
		slog.String("orchestrator_url", cfg.OrchestratorURL),
		slog.String("cursor_file", cfg.CursorFile),
		slog.String("corpus_dir", cfg.CorpusDir),
		slog.Float64("rps", cfg.RequestsPerSecond),
		slog.Bool("dry_run", cfg.DryRun),
	)

	runner := seed.NewRunner(cfg, logger)

	// Setup signal handler for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("seed interrupted, cursor saved for resume")
			return nil
		}
		return fmt.Errorf("run seed: %w", err)
	}

	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := seed.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner := seed.NewRunner(cfg, logger)

	cursor, err := runner.GetCursor()
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}

	if cursor.IsEmpty() {
		fmt.Println("No cursor found. Seeding will start from the beginning.")
		return nil
	}

	fmt.Printf("Cursor Status:\n")
	fmt.Printf("  Version:         %d\n", cursor.Version)
	fmt.Printf("  Last Theme:      %s\n", cursor.LastTheme)
	fmt.Printf("  Last Scheme:     %s\n", cursor.LastScheme)
	fmt.Printf("  Processed Count: %d\n", cursor.ProcessedCount)
	fmt.Printf("  Updated At:      %s\n", cursor.UpdatedAt.Format(time.RFC3339))

	return nil
}

func resetCursor(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := seed.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner := seed.NewRunner(cfg, logger)

	if err := runner.ResetCursor(); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}

	logger.Info("cursor reset successfully")
	return nil
}
