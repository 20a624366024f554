package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultFPS is assumed when the stream frame rate cannot be read.
const DefaultFPS = 30.0

// Info describes a probed media file.
type Info struct {
	DurationSec float64 `json:"durationSec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	HasAudio    bool    `json:"hasAudio"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe returns duration, resolution and frame rate of the file at path.
// A missing video stream leaves Width and Height at zero.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	stdout, _, err := f.exec(ctx, f.ffprobePath, args)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return ParseProbe([]byte(stdout))
}

// ParseProbe parses ffprobe JSON output.
func ParseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("%w: parse ffprobe output: %w", ErrProbeFailed, err)
	}

	info := Info{FPS: DefaultFPS}
	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	videoSeen := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			info.Width = s.Width
			info.Height = s.Height
			// r_frame_rate is the timebase rate on variable frame rate
			// sources; avg_frame_rate is the actual cadence.
			if fps, ok := parseRate(s.AvgFrameRate); ok {
				info.FPS = fps
			} else if fps, ok := parseRate(s.RFrameRate); ok {
				info.FPS = fps
			}
			if err != nil {
				duration, err = strconv.ParseFloat(strings.TrimSpace(s.Duration), 64)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if err != nil || duration <= 0 {
		return Info{}, fmt.Errorf("%w: no usable duration in ffprobe output", ErrProbeFailed)
	}
	info.DurationSec = duration
	return info, nil
}

// parseRate parses "num/den" or a plain number.
func parseRate(rate string) (float64, bool) {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if !found {
		return n, true
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return n / d, true
}
