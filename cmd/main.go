package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmo-migrator/internal/di"
	"cosmo-migrator/internal/migration/config"
	"cosmo-migrator/internal/migration/usecase"
	"cosmo-migrator/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitConfig     = 2
	exitIncomplete = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	appLogger := logger.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Errorf("Failed to load configuration: %v", err)
		return exitConfig
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	appLogger = appLogger.WithFields(map[string]interface{}{"run_id": runID})
	appLogger.Infof("cosmo-migrator starting in %s mode", cfg.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container := di.NewContainer(cfg, appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
	}()
	if err := container.Initialize(ctx); err != nil {
		appLogger.Errorf("Failed to initialize: %v", err)
		return exitFailure
	}

	if container.StatusServer != nil {
		if _, err := container.StatusServer.Start(); err != nil {
			appLogger.Errorf("Failed to start status server: %v", err)
			return exitFailure
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := container.StatusServer.Shutdown(shutdownCtx); err != nil {
				appLogger.Errorf("Status server forced to shutdown: %v", err)
			}
		}()
	}

	report, err := execute(ctx, container, runID)
	if report != nil {
		container.Tracker.SetReport(report)
	}
	linger(ctx, container, appLogger)

	switch {
	case err != nil:
		appLogger.Errorf("Run failed: %v", err)
		return exitFailure
	case cfg.FailOnSkip && report != nil && report.Incomplete():
		appLogger.Errorf("Run incomplete: %d skipped, %d failed", report.Skipped, report.Failed)
		return exitIncomplete
	}
	appLogger.Info("Run finished")
	return exitOK
}

// execute runs the configured mode. Export produces no report.
func execute(ctx context.Context, c *di.Container, runID string) (*usecase.Report, error) {
	switch c.Config.Mode {
	case config.ModeDirect:
		return c.Orchestrator().Run(ctx, runID)
	case config.ModeExport:
		result, err := c.Transfer().Export(ctx)
		if result != nil {
			c.Logger.Infof("exported %d documents (%d skipped) by kind: %v", result.Exported, result.Skipped, result.ByKind)
		}
		return nil, err
	case config.ModeImport:
		return c.Transfer().Import(ctx, usecase.NewMigrationContext(runID))
	}
	return nil, fmt.Errorf("unsupported mode %q", c.Config.Mode)
}

// linger keeps the status server reachable after the run until the
// configured delay passes or the process is interrupted.
func linger(ctx context.Context, c *di.Container, log logger.Logger) {
	d := c.Config.Status.Linger
	if c.StatusServer == nil || d <= 0 {
		return
	}
	log.Infof("Keeping status server up for %s", d)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
