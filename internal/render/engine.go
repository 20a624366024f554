// Package render turns final segments and zooms into one output video
// with a single ffmpeg invocation.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/zoom"
)

// ErrRenderFailed is returned when ffmpeg fails or produces no output.
var ErrRenderFailed = errors.New("render: render failed")

// Engine renders edit plans with ffmpeg.
type Engine struct {
	runner media.Runner
	preset string
	crf    int
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEncoding sets the libx264 preset and CRF.
func WithEncoding(preset string, crf int) Option {
	return func(e *Engine) {
		e.preset = preset
		e.crf = crf
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine running ffmpeg through runner.
func NewEngine(runner media.Runner, opts ...Option) *Engine {
	e := &Engine{
		runner: runner,
		preset: "veryfast",
		crf:    20,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render writes to output the concatenation of final cut from input, with
// zooms (output timeline) applied. A failed render leaves no output file.
func (e *Engine) Render(ctx context.Context, input, output string, final []plan.Segment, zooms []zoom.Zoom, info media.Info) error {
	if len(final) == 0 {
		return fmt.Errorf("%w: %w", ErrRenderFailed, plan.ErrNoSegmentsToRender)
	}

	g := BuildGraph(final, zooms, info)
	args := e.args(input, output, g)

	start := time.Now()
	if _, err := e.runner.Run(ctx, args); err != nil {
		_ = os.Remove(output)
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	st, err := os.Stat(output)
	if err != nil || st.Size() == 0 {
		_ = os.Remove(output)
		return fmt.Errorf("%w: ffmpeg produced no output at %s", ErrRenderFailed, output)
	}

	e.logger.Info("render complete",
		slog.Int("segments", len(final)),
		slog.Int("zooms", len(zooms)),
		slog.Float64("output_sec", plan.Total(final)),
		slog.Int64("bytes", st.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (e *Engine) args(input, output string, g Graph) []string {
	args := []string{
		"-y", // Overwrite output file
		"-hide_banner",
		"-i", input,
		"-filter_complex", g.Filter,
	}
	for _, m := range g.Maps {
		args = append(args, "-map", m)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", e.preset,
		"-crf", fmt.Sprint(e.crf),
		"-pix_fmt", "yuv420p", // Pixel format for compatibility
	)
	if len(g.Maps) > 1 {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}
	return append(args, "-movflags", "+faststart", output)
}
