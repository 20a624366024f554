package server

import (
	"log/slog"
	"net/http"
)

// DefaultMaxBodyBytes bounds POST bodies; job requests carry only an input reference.
const DefaultMaxBodyBytes = 64 << 10

// Config contains server configuration options.
type Config struct {
	// MaxBodyBytes caps request bodies. Zero disables the cap.
	MaxBodyBytes int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: DefaultMaxBodyBytes}
}

// NewRouter creates the ops router. It uses ServeMux method patterns.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/retry", h.RetryJob)

	chain := Chain(
		Recover(logger),
		AccessLog(logger),
		LimitBody(cfg.MaxBodyBytes),
	)
	return chain(mux)
}
