// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Job store backends selectable with JOB_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StoreSupabase = "supabase"
)

// Static errors for configuration validation.
var (
	// ErrUnknownStoreBackend is returned when JOB_STORE names no known backend.
	ErrUnknownStoreBackend = errors.New("config: unknown JOB_STORE backend")
	// ErrDatabaseURLRequired is returned when JOB_STORE=postgres has no DATABASE_URL.
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required for the postgres job store")
	// ErrRedisAddrRequired is returned when JOB_STORE=redis has no REDIS_ADDR.
	ErrRedisAddrRequired = errors.New("config: REDIS_ADDR is required for the redis job store")
	// ErrSupabaseConfigRequired is returned when JOB_STORE=supabase lacks its URL or key.
	ErrSupabaseConfigRequired = errors.New("config: SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase job store")
	// ErrInvalidPollInterval is returned for a non-positive POLL_INTERVAL.
	ErrInvalidPollInterval = errors.New("config: POLL_INTERVAL must be positive")
)

// Config holds all configuration for the worker.
type Config struct {
	// Worker settings
	WorkerID        string        `env:"WORKER_ID" json:"worker_id,omitempty"`
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=2s" json:"poll_interval"`
	LeaseTimeout    time.Duration `env:"LEASE_TIMEOUT, default=0s" json:"lease_timeout"`
	ReclaimInterval time.Duration `env:"RECLAIM_INTERVAL, default=1m" json:"reclaim_interval"`

	// Job store settings
	JobStore      string `env:"JOB_STORE, default=memory" json:"job_store"`
	DatabaseURL   string `env:"DATABASE_URL" json:"-"` // Masked in JSON
	SQLitePath    string `env:"SQLITE_PATH, default=autoedit.db" json:"sqlite_path"`
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`
	SupabaseURL   string `env:"SUPABASE_URL" json:"supabase_url,omitempty"`
	SupabaseKey   string `env:"SUPABASE_SERVICE_KEY" json:"-"` // Masked in JSON
	SupabaseTable string `env:"SUPABASE_TABLE, default=jobs" json:"supabase_table"`

	// Storage settings
	TempDir    string `env:"TEMP_DIR, default=/tmp/autoedit" json:"temp_dir"`
	StorageDir string `env:"STORAGE_DIR" json:"storage_dir,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION, default=us-east-1" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Oracle settings
	OracleBaseURL         string        `env:"ORACLE_BASE_URL, default=https://api.openai.com/v1" json:"oracle_base_url"`
	OracleAPIKey          string        `env:"ORACLE_API_KEY" json:"-"` // Masked in JSON
	OraclePlanModel       string        `env:"ORACLE_PLAN_MODEL, default=gpt-4o-mini" json:"oracle_plan_model"`
	OracleTranscribeModel string        `env:"ORACLE_TRANSCRIBE_MODEL, default=whisper-1" json:"oracle_transcribe_model"`
	OracleTimeout         time.Duration `env:"ORACLE_TIMEOUT, default=2m" json:"oracle_timeout"`

	// Processing settings
	FFmpegPath    string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath   string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	FFmpegTimeout time.Duration `env:"FFMPEG_TIMEOUT, default=60m" json:"ffmpeg_timeout"`
	SignedURLTTL  time.Duration `env:"SIGNED_URL_TTL, default=30m" json:"signed_url_ttl"`

	// Ops server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if an S3 bucket is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// OracleEnabled returns true if an oracle API key is configured.
// Without it every job uses the silence fallback plan and no zooms.
func (c *Config) OracleEnabled() bool {
	return c.OracleAPIKey != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), nil)
}

// LoadFrom is Load with an explicit lookuper. A nil lookuper reads the
// process environment.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	switch strings.ToLower(c.JobStore) {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return ErrDatabaseURLRequired
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return ErrRedisAddrRequired
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return ErrSupabaseConfigRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreBackend, c.JobStore)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID: %s, PollInterval: %s, LeaseTimeout: %s, JobStore: %s, DatabaseURL: %s, RedisAddr: %s, RedisPassword: %s, SupabaseURL: %s, SupabaseKey: %s, TempDir: %s, StorageDir: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, OracleBaseURL: %s, OracleAPIKey: %s, FFmpegTimeout: %s, SignedURLTTL: %s, Port: %d, LogFormat: %s, LogLevel: %s}",
		c.WorkerID,
		c.PollInterval,
		c.LeaseTimeout,
		c.JobStore,
		mask(c.DatabaseURL),
		c.RedisAddr,
		mask(c.RedisPassword),
		c.SupabaseURL,
		mask(c.SupabaseKey),
		c.TempDir,
		c.StorageDir,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.OracleBaseURL,
		mask(c.OracleAPIKey),
		c.FFmpegTimeout,
		c.SignedURLTTL,
		c.Port,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
