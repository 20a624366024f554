// Package audio extracts speech audio from videos and detects silent spans.
package audio

import "context"

// SilenceOpts configures silence detection.
type SilenceOpts struct {
	// ThreshDB is the volume threshold in dBFS below which
	// audio is considered silence.
	// Default: -30 dBFS.
	ThreshDB float64

	// MinSilenceSec is the minimum silence duration in seconds.
	// Default: 0.6 seconds.
	MinSilenceSec float64
}

// DefaultSilenceOpts returns the default options for silence detection.
func DefaultSilenceOpts() SilenceOpts {
	return SilenceOpts{
		ThreshDB:      -30,
		MinSilenceSec: 0.6,
	}
}

// Interval is a detected silence in seconds from the start of the input.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the interval length in seconds.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// Extractor produces a speech-ready audio track from a video.
type Extractor interface {
	// Extract writes a mono 16 kHz PCM WAV of input's audio to output.
	Extract(ctx context.Context, input, output string) error
}

// SilenceDetector finds silent intervals in a media file.
type SilenceDetector interface {
	// DetectSilences returns silences ordered by start time.
	DetectSilences(ctx context.Context, input string, opts SilenceOpts) ([]Interval, error)
}
