package plan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/audio"
	"github.com/maauso/autoedit/internal/oracle"
)

// Result is the outcome of edit planning.
type Result struct {
	Plan *EditPlan
	// Final is the merged render-order segment list.
	Final []Segment
	// Transcript is empty when transcription was skipped or failed.
	Transcript string
}

// Planner produces validated edit plans.
type Planner struct {
	oracle   oracle.Client
	audio    audio.Extractor
	silences audio.SilenceDetector
	validate *validator.Validate
	opts     audio.SilenceOpts
	logger   *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithOracle enables oracle planning. Without it every plan is the
// silence fallback.
func WithOracle(c oracle.Client) Option {
	return func(p *Planner) {
		p.oracle = c
	}
}

// WithSilenceOpts overrides silence detection parameters.
func WithSilenceOpts(o audio.SilenceOpts) Option {
	return func(p *Planner) {
		p.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithValidator shares a validator instance.
func WithValidator(v *validator.Validate) Option {
	return func(p *Planner) {
		if v != nil {
			p.validate = v
		}
	}
}

// NewPlanner creates a Planner.
func NewPlanner(extractor audio.Extractor, detector audio.SilenceDetector, opts ...Option) *Planner {
	p := &Planner{
		audio:    extractor,
		silences: detector,
		validate: validator.New(),
		opts:     audio.DefaultSilenceOpts(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds the edit plan of the video at videoPath.
// Oracle problems never fail planning; they select the silence fallback.
// The only planning error is ErrNoSegmentsToRender.
func (p *Planner) Plan(ctx context.Context, videoPath, workDir string, durationSec float64) (*Result, error) {
	res := &Result{}

	if p.oracle != nil {
		res.Transcript = p.transcribe(ctx, videoPath, workDir)
		if res.Transcript != "" {
			plan, err := p.requestPlan(ctx, res.Transcript, durationSec)
			if err == nil {
				res.Plan = plan
			} else {
				p.logger.Warn("oracle edit plan rejected, using silence fallback", slog.String("error", err.Error()))
			}
		}
	}

	if res.Plan == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Plan = p.silencePlan(ctx, videoPath, durationSec)
	}

	final, err := FinalSegments(res.Plan)
	if err != nil {
		return nil, err
	}
	res.Final = final

	p.logger.Info("edit plan ready",
		slog.String("source", string(res.Plan.Source)),
		slog.Int("keep_segments", len(res.Plan.KeepSegments)),
		slog.Int("final_segments", len(final)),
		slog.Float64("output_sec", Total(final)),
	)
	return res, nil
}

// transcribe extracts speech audio and transcribes it. Failures degrade
// to an empty transcript.
func (p *Planner) transcribe(ctx context.Context, videoPath, workDir string) string {
	wav := filepath.Join(workDir, "speech.wav")
	if err := p.audio.Extract(ctx, videoPath, wav); err != nil {
		p.logger.Warn("audio extraction failed, skipping transcription", slog.String("error", err.Error()))
		return ""
	}
	defer func() { _ = os.Remove(wav) }()

	data, err := os.ReadFile(wav) // #nosec G304 - path is inside the job work dir
	if err != nil {
		p.logger.Warn("read extracted audio failed", slog.String("error", err.Error()))
		return ""
	}

	text, err := p.oracle.Transcribe(ctx, data)
	if err != nil {
		p.logger.Warn("transcription failed", slog.String("error", err.Error()))
		return ""
	}
	return text
}

func (p *Planner) requestPlan(ctx context.Context, transcript string, durationSec float64) (*EditPlan, error) {
	reply, err := p.oracle.RequestJSON(ctx, editSystemPrompt, editUserPrompt(transcript, durationSec))
	if err != nil {
		return nil, fmt.Errorf("request edit plan: %w", err)
	}
	return ParseOracleReply(p.validate, reply, durationSec)
}

func (p *Planner) silencePlan(ctx context.Context, videoPath string, durationSec float64) *EditPlan {
	silences, err := p.silences.DetectSilences(ctx, videoPath, p.opts)
	if err != nil {
		p.logger.Warn("silence detection failed, keeping full video", slog.String("error", err.Error()))
		silences = nil
	}
	return SilencePlan(silences, durationSec)
}
