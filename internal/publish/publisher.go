// Package publish uploads rendered results to object storage and issues
// signed read URLs for them.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/storage"
	"github.com/maauso/autoedit/internal/zoom"
)

// ErrUploadFailed is returned when an artifact cannot be stored.
var ErrUploadFailed = errors.New("publish: upload failed")

// DefaultURLExpiry is the validity of issued signed URLs.
const DefaultURLExpiry = 30 * time.Minute

// VideoPath returns the storage path of a job's rendered video.
func VideoPath(jobID string) string {
	return path.Join("results", jobID, "output.mp4")
}

// ResultPath returns the storage path of a job's metadata JSON.
func ResultPath(jobID string) string {
	return path.Join("results", jobID, "result.json")
}

// Metadata is the result.json document stored next to the video.
type Metadata struct {
	JobID             string         `json:"jobId"`
	SourceDurationSec float64        `json:"sourceDurationSec"`
	OutputDurationSec float64        `json:"outputDurationSec"`
	Hook              plan.Segment   `json:"hook"`
	Segments          []plan.Segment `json:"segments"`
	Zooms             []zoom.Zoom    `json:"zooms"`
	PlanSource        plan.Source    `json:"planSource"`
	Notes             string         `json:"notes,omitempty"`
	VideoPath         string         `json:"videoPath"`
	RenderedAt        time.Time      `json:"renderedAt"`
}

// Published holds the stored paths and signed URLs of a job's results.
// A URL is empty when signing failed.
type Published struct {
	VideoPath  string
	ResultPath string
	VideoURL   string
	ResultURL  string
}

// Publisher uploads results.
type Publisher struct {
	objects storage.ObjectStore
	expiry  time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. A non-positive expiry uses DefaultURLExpiry.
func NewPublisher(objects storage.ObjectStore, expiry time.Duration, logger *slog.Logger) *Publisher {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{objects: objects, expiry: expiry, logger: logger}
}

// Publish uploads the rendered video and its metadata under deterministic
// job paths, then signs read URLs for both. Upload failures are fatal;
// signing failures are logged and leave the URL empty.
func (p *Publisher) Publish(ctx context.Context, jobID, videoFile string, meta Metadata) (*Published, error) {
	out := &Published{VideoPath: VideoPath(jobID), ResultPath: ResultPath(jobID)}

	f, err := os.Open(videoFile) // #nosec G304 - path is the render output
	if err != nil {
		return nil, fmt.Errorf("%w: open rendered video: %w", ErrUploadFailed, err)
	}
	defer func() { _ = f.Close() }()

	if err := p.objects.WriteFile(ctx, out.VideoPath, f, "video/mp4"); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, out.VideoPath, err)
	}

	meta.JobID = jobID
	meta.VideoPath = out.VideoPath
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal metadata: %w", ErrUploadFailed, err)
	}
	if err := p.objects.WriteFile(ctx, out.ResultPath, bytes.NewReader(body), "application/json"); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, out.ResultPath, err)
	}

	out.VideoURL = p.sign(ctx, out.VideoPath)
	out.ResultURL = p.sign(ctx, out.ResultPath)
	return out, nil
}

func (p *Publisher) sign(ctx context.Context, objectPath string) string {
	url, err := p.objects.SignedURL(ctx, objectPath, p.expiry, storage.ActionRead)
	if err != nil {
		p.logger.Warn("signed URL unavailable",
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return url
}
