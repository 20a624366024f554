// Package main provides the entry point for the autoedit worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/autoedit/internal/bootstrap"
	"github.com/maauso/autoedit/internal/config"
	"github.com/maauso/autoedit/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting autoedit worker",
		slog.String("job_store", cfg.JobStore),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("lease_timeout", cfg.LeaseTimeout),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("oracle_enabled", cfg.OracleEnabled()),
		slog.Int("port", cfg.Port),
	)
	logger.Debug("configuration", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", slog.String("error", err.Error()))
		}
	}()

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.Port > 0 {
		handlers := server.NewHandlers(deps.Store, logger,
			server.WithSignedURLs(deps.Storage, cfg.SignedURLTTL),
			server.WithWorkerID(deps.Worker.ID()),
			server.WithValidator(deps.Validator),
		)
		srv = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      server.NewRouter(handlers, logger, server.DefaultConfig()),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("ops server listening",
				slog.String("addr", srv.Addr),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server failed: %w", err)
			}
		}()
	}

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- deps.Worker.Run(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		stop()
		<-workerDone
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := <-workerDone; err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	logger.Info("worker stopped gracefully")
	return nil
}
