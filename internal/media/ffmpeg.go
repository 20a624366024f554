package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Static errors for media operations.
var (
	// ErrProbeFailed is returned when ffprobe exits non-zero or its output is unparsable.
	ErrProbeFailed = errors.New("media: probe failed")
	// ErrTimeout is returned when a codec invocation exceeds its deadline.
	ErrTimeout = errors.New("media: codec invocation timed out")
)

// FFmpeg runs the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	// timeout bounds each invocation; zero means no deadline.
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures FFmpeg.
type Option func(*FFmpeg)

// WithFFprobePath sets the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(f *FFmpeg) {
		if path != "" {
			f.ffprobePath = path
		}
	}
}

// WithTimeout bounds every ffmpeg and ffprobe invocation.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *FFmpeg) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFFmpeg creates a new FFmpeg runner.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpeg(ffmpegPath string, opts ...Option) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	f := &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run executes ffmpeg with the given arguments. Stderr is returned on
// success too, since filters such as silencedetect report there.
func (f *FFmpeg) Run(ctx context.Context, args []string) (string, error) {
	_, stderr, err := f.exec(ctx, f.ffmpegPath, args)
	return stderr, err
}

func (f *FFmpeg) exec(ctx context.Context, bin string, args []string) (stdout, stderr string, err error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	// #nosec G204 - binary paths are set by the application, not user input
	cmd := exec.CommandContext(ctx, bin, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	start := time.Now()
	runErr := cmd.Run()
	f.logger.Debug("codec invocation",
		slog.String("bin", bin),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", runErr == nil),
	)

	if runErr != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				runErr = fmt.Errorf("%w after %s: %w", ErrTimeout, f.timeout, ctx.Err())
			} else {
				runErr = fmt.Errorf("%s cancelled: %w", bin, ctx.Err())
			}
		}
		return outBuf.String(), errBuf.String(), &FFmpegError{
			Args:   args,
			Stderr: errBuf.String(),
			Err:    runErr,
		}
	}

	return outBuf.String(), errBuf.String(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, tail(e.Stderr, 4096))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tail keeps the last n bytes of s; ffmpeg prints the cause at the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
