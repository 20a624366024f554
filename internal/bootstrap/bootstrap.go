// Package bootstrap provides dependency initialization for the autoedit worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/audio"
	"github.com/maauso/autoedit/internal/config"
	"github.com/maauso/autoedit/internal/input"
	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/job/id"
	"github.com/maauso/autoedit/internal/jobstore"
	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/oracle"
	"github.com/maauso/autoedit/internal/pipeline"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/publish"
	"github.com/maauso/autoedit/internal/render"
	"github.com/maauso/autoedit/internal/storage"
	"github.com/maauso/autoedit/internal/worker"
	"github.com/maauso/autoedit/internal/zoom"
)

// Dependencies holds all initialized dependencies for the worker process.
type Dependencies struct {
	Store   job.Store
	Storage storage.Storage
	Worker  *worker.Worker
	// Validator is shared by the planners and the ops handlers.
	Validator *validator.Validate

	closers []func() error
}

// Close releases the job store connection.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	store, closer, err := initJobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}

	objects, err := initStorage(ctx, cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Storage = objects

	client, err := initOracle(cfg, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithTimeout(cfg.FFmpegTimeout),
		media.WithLogger(logger),
	)
	audioTools := audio.NewFFmpegAudio(ffmpeg)
	validate := validator.New()
	deps.Validator = validate

	planOpts := []plan.Option{plan.WithLogger(logger), plan.WithValidator(validate)}
	if client != nil {
		planOpts = append(planOpts, plan.WithOracle(client))
	}

	processor := pipeline.NewProcessor(store, pipeline.Stages{
		Input:     input.NewResolver(objects, input.WithLogger(logger)),
		Probe:     ffmpeg,
		EditPlan:  plan.NewPlanner(audioTools, audioTools, planOpts...),
		ZoomPlan:  zoom.NewPlanner(client, validate, logger),
		Render:    render.NewEngine(ffmpeg, render.WithLogger(logger)),
		Publish:   publish.NewPublisher(objects, cfg.SignedURLTTL, logger),
		Workspace: objects,
	}, logger)

	ownerID := cfg.WorkerID
	if ownerID == "" {
		ownerID = id.Worker()
	}
	deps.Worker = worker.New(store, processor, ownerID,
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithLeaseTimeout(cfg.LeaseTimeout, cfg.ReclaimInterval),
		worker.WithLogger(logger),
	)

	return deps, nil
}

// initJobStore opens the job store backend selected by JOB_STORE.
func initJobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Store, func() error, error) {
	backend := strings.ToLower(cfg.JobStore)
	switch backend {
	case config.StorePostgres:
		s, err := jobstore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres job store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		logger.Info("postgres job store configured")
		return s, func() error { s.Close(); return nil }, nil

	case config.StoreSQLite:
		s, err := jobstore.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite job store: %w", err)
		}
		logger.Info("sqlite job store configured", slog.String("path", cfg.SQLitePath))
		return s, s.Close, nil

	case config.StoreRedis:
		s, err := jobstore.NewRedisStore(ctx, jobstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create redis job store: %w", err)
		}
		logger.Info("redis job store configured", slog.String("addr", cfg.RedisAddr))
		return s, s.Close, nil

	case config.StoreSupabase:
		s, err := jobstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseTable)
		if err != nil {
			return nil, nil, fmt.Errorf("create supabase job store: %w", err)
		}
		logger.Info("supabase job store configured",
			slog.String("url", cfg.SupabaseURL),
			slog.String("table", cfg.SupabaseTable),
		)
		return s, nil, nil

	case config.StoreMemory:
		logger.Warn("in-memory job store configured; jobs are lost on restart and not shared between workers")
		return job.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownStoreBackend, cfg.JobStore)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.StorageDir, "")
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}

// initOracle returns nil when no API key is configured.
func initOracle(cfg *config.Config, logger *slog.Logger) (oracle.Client, error) {
	if !cfg.OracleEnabled() {
		logger.Warn("oracle disabled; edit plans use silence detection and no zooms are applied")
		return nil, nil
	}
	c, err := oracle.NewClient(cfg.OracleAPIKey,
		oracle.WithBaseURL(cfg.OracleBaseURL),
		oracle.WithModels(cfg.OraclePlanModel, cfg.OracleTranscribeModel),
		oracle.WithTimeout(cfg.OracleTimeout),
		oracle.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle client: %w", err)
	}
	logger.Info("oracle configured",
		slog.String("base_url", cfg.OracleBaseURL),
		slog.String("plan_model", cfg.OraclePlanModel),
	)
	return c, nil
}
