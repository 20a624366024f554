// Package media wraps the ffmpeg and ffprobe binaries: invocation with
// captured stderr and deadlines, and structured probing of input files.
package media

import "context"

// Runner executes ffmpeg with an argument list.
type Runner interface {
	// Run executes ffmpeg and returns its stderr. A non-zero exit is
	// reported as *FFmpegError carrying the arguments and stderr.
	Run(ctx context.Context, args []string) (stderr string, err error)
}

// Prober extracts stream metadata from a local media file.
type Prober interface {
	// Probe returns duration, resolution and frame rate. Failures wrap ErrProbeFailed.
	Probe(ctx context.Context, path string) (Info, error)
}

// Compile-time checks that FFmpeg implements Runner and Prober.
var (
	_ Runner = (*FFmpeg)(nil)
	_ Prober = (*FFmpeg)(nil)
)
