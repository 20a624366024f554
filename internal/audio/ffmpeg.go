package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/autoedit/internal/media"
)

// Static errors for audio operations.
var (
	// ErrExtractFailed is returned when the audio track cannot be extracted.
	ErrExtractFailed = errors.New("audio: extract failed")
	// ErrDetectFailed is returned when silence detection cannot run.
	ErrDetectFailed = errors.New("audio: silence detection failed")
)

// SampleRate is the sample rate of extracted speech audio.
const SampleRate = 16000

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// FFmpegAudio implements Extractor and SilenceDetector using ffmpeg.
type FFmpegAudio struct {
	runner media.Runner
}

// NewFFmpegAudio creates a new FFmpegAudio on top of runner.
func NewFFmpegAudio(runner media.Runner) *FFmpegAudio {
	return &FFmpegAudio{runner: runner}
}

// Verify interface implementation at compile time.
var (
	_ Extractor       = (*FFmpegAudio)(nil)
	_ SilenceDetector = (*FFmpegAudio)(nil)
)

// Extract writes a mono 16 kHz WAV of the input's audio track.
func (a *FFmpegAudio) Extract(ctx context.Context, input, output string) error {
	args := []string{
		"-y", // Overwrite output
		"-hide_banner",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "pcm_s16le",
		output,
	}
	if _, err := a.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractFailed, err)
	}
	return nil
}

// DetectSilences runs ffmpeg silencedetect over the input.
func (a *FFmpegAudio) DetectSilences(ctx context.Context, input string, opts SilenceOpts) ([]Interval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%sdB:d=%s",
		strconv.FormatFloat(opts.ThreshDB, 'f', -1, 64),
		strconv.FormatFloat(opts.MinSilenceSec, 'f', -1, 64),
	)

	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", input,
		"-vn",
		"-af", filter,
		"-f", "null",
		"-",
	}

	// ffmpeg writes silencedetect output to stderr
	stderr, err := a.runner.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectFailed, err)
	}

	return parseSilenceOutput(stderr)
}

// parseSilenceOutput parses ffmpeg silencedetect output.
// A silence still open at end of input is closed at the reported duration.
func parseSilenceOutput(output string) ([]Interval, error) {
	var intervals []Interval
	scanner := bufio.NewScanner(strings.NewReader(output))

	var currentStart float64
	hasStart := false

	for scanner.Scan() {
		line := scanner.Text()

		if val, ok := fieldAfter(line, "silence_start:"); ok {
			currentStart = max(val, 0)
			hasStart = true
			continue
		}

		if val, ok := fieldAfter(line, "silence_end:"); ok && hasStart {
			if val > currentStart {
				intervals = append(intervals, Interval{Start: currentStart, End: val})
			}
			hasStart = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan silencedetect output: %w", err)
	}

	if hasStart {
		if total, ok := parseDuration(output); ok && total > currentStart {
			intervals = append(intervals, Interval{Start: currentStart, End: total})
		}
	}

	return intervals, nil
}

func fieldAfter(line, key string) (float64, bool) {
	_, rest, found := strings.Cut(line, key)
	if !found {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	val, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// parseDuration reads the input "Duration: HH:MM:SS.ms" header.
func parseDuration(output string) (float64, bool) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, false
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	return hours*3600 + minutes*60 + seconds + frac, true
}
