// Package pipeline drives one claimed job through the edit stages:
// input, probe, edit plan, zoom plan, render and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/maauso/autoedit/internal/input"
	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/media"
	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/publish"
	"github.com/maauso/autoedit/internal/storage"
	"github.com/maauso/autoedit/internal/zoom"
)

// Progress milestones written as each stage starts or completes.
const (
	ProgressResolving  = 5
	ProgressInputReady = 10
	ProgressProbed     = 20
	ProgressEditPlan   = 40
	ProgressZoomPlan   = 55
	ProgressRendering  = 65
	ProgressRendered   = 80
	ProgressPublishing = 90
	ProgressDone       = 100
)

// InputResolver fetches a job's source video into a local directory.
type InputResolver interface {
	Resolve(ctx context.Context, in job.Input, dir string) (*input.Resolved, error)
}

// EditPlanner produces the validated edit plan and final segments.
type EditPlanner interface {
	Plan(ctx context.Context, videoPath, workDir string, durationSec float64) (*plan.Result, error)
}

// ZoomPlanner produces zooms on the original timeline.
type ZoomPlanner interface {
	Plan(ctx context.Context, transcript string, durationSec float64) []zoom.Zoom
}

// Renderer renders final segments with output-timeline zooms.
type Renderer interface {
	Render(ctx context.Context, input, output string, final []plan.Segment, zooms []zoom.Zoom, info media.Info) error
}

// Publisher stores the rendered result.
type Publisher interface {
	Publish(ctx context.Context, jobID, videoFile string, meta publish.Metadata) (*publish.Published, error)
}

// Stages groups the collaborators a Processor drives.
type Stages struct {
	Input     InputResolver
	Probe     media.Prober
	EditPlan  EditPlanner
	ZoomPlan  ZoomPlanner
	Render    Renderer
	Publish   Publisher
	Workspace storage.TempStore
}

// Processor runs the stages for one job and records its progress.
type Processor struct {
	store  job.Store
	stages Stages
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(store job.Store, stages Stages, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, stages: stages, logger: logger}
}

// outcome carries what the terminal write needs from a successful run.
type outcome struct {
	published *publish.Published
}

// Process runs every stage for j, which must already be claimed by ownerID,
// and writes the terminal state. The returned error is the stage failure
// (already recorded on the job) or a failure to write the terminal state.
func (p *Processor) Process(ctx context.Context, j *job.Job, ownerID string) error {
	logger := p.logger.With(slog.String("job_id", j.ID), slog.String("owner_id", ownerID))
	logger.Info("processing job")
	started := time.Now()

	workDir, err := p.stages.Workspace.MkdirTemp(ctx, "job_"+j.ID)
	if err != nil {
		return p.Fail(ctx, j.ID, ownerID, fmt.Errorf("create work dir: %w", err))
	}
	defer func() {
		if err := p.stages.Workspace.CleanupTemp(context.WithoutCancel(ctx), []string{workDir}); err != nil {
			logger.Warn("cleanup work dir failed", slog.String("error", err.Error()))
		}
	}()

	out, err := p.run(ctx, j, ownerID, workDir, logger)
	if errors.Is(err, job.ErrLeaseLost) {
		logger.Warn("lease lost, abandoning job", slog.String("error", err.Error()))
		return err
	}
	if err != nil {
		return p.Fail(ctx, j.ID, ownerID, err)
	}

	_, err = job.Finish(ctx, p.store, j.ID, ownerID, job.Patch{
		Status:            job.Ptr(job.StatusDone),
		Progress:          job.Ptr(ProgressDone),
		Message:           job.Ptr("done"),
		FinalArtifactPath: job.Ptr(out.published.VideoPath),
		ResultPath:        job.Ptr(out.published.ResultPath),
		VideoURL:          job.Ptr(out.published.VideoURL),
		ResultURL:         job.Ptr(out.published.ResultURL),
	})
	if err != nil {
		logger.Error("record completion failed", slog.String("error", err.Error()))
		return fmt.Errorf("record completion: %w", err)
	}

	logger.Info("job done",
		slog.String("artifact", out.published.VideoPath),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Fail records cause as the job's terminal failure and returns it.
func (p *Processor) Fail(ctx context.Context, jobID, ownerID string, cause error) error {
	code := Classify(cause)
	p.logger.Error("job failed",
		slog.String("job_id", jobID),
		slog.String("code", string(code)),
		slog.String("error", cause.Error()),
	)

	_, err := job.Finish(context.WithoutCancel(ctx), p.store, jobID, ownerID, job.Patch{
		Status:    job.Ptr(job.StatusFailed),
		Message:   job.Ptr("failed"),
		Error:     job.Ptr(cause.Error()),
		ErrorCode: job.Ptr(code),
		AppendLog: []job.LogEntry{job.NewLogEntry(fmt.Sprintf("%s: %s", code, cause.Error()))},
	})
	if err != nil {
		return errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	return cause
}

func (p *Processor) run(ctx context.Context, j *job.Job, ownerID, workDir string, logger *slog.Logger) (*outcome, error) {
	mark := func(pct int, msg string, durationSec *float64) error {
		return p.progress(ctx, j.ID, ownerID, pct, msg, durationSec)
	}

	if err := mark(ProgressResolving, "resolving input", nil); err != nil {
		return nil, err
	}
	in, err := p.stages.Input.Resolve(ctx, j.Input, workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve input: %w", err)
	}
	if err := mark(ProgressInputReady,
		fmt.Sprintf("input ready from %s (%d bytes)", in.Source.Kind, in.Bytes), nil); err != nil {
		return nil, err
	}

	info, err := p.stages.Probe.Probe(ctx, in.Path)
	if err != nil {
		return nil, fmt.Errorf("probe input: %w", err)
	}
	if err := mark(ProgressProbed,
		fmt.Sprintf("probed %.3fs %dx%d @ %.2ffps", info.DurationSec, info.Width, info.Height, info.FPS),
		job.Ptr(info.DurationSec)); err != nil {
		return nil, err
	}

	edit, err := p.stages.EditPlan.Plan(ctx, in.Path, workDir, info.DurationSec)
	if err != nil {
		return nil, fmt.Errorf("edit plan: %w", err)
	}
	if err := mark(ProgressEditPlan,
		fmt.Sprintf("%s plan: %d final segments, %.3fs", edit.Plan.Source, len(edit.Final), plan.Total(edit.Final)), nil); err != nil {
		return nil, err
	}

	zooms := zoom.Remap(edit.Final, p.stages.ZoomPlan.Plan(ctx, edit.Transcript, info.DurationSec))
	if err := mark(ProgressZoomPlan, fmt.Sprintf("%d zooms after remap", len(zooms)), nil); err != nil {
		return nil, err
	}

	output := filepath.Join(workDir, "output.mp4")
	if err := mark(ProgressRendering, "rendering", nil); err != nil {
		return nil, err
	}
	if err := p.stages.Render.Render(ctx, in.Path, output, edit.Final, zooms, info); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if err := mark(ProgressRendered, "rendered", nil); err != nil {
		return nil, err
	}

	if err := mark(ProgressPublishing, "publishing", nil); err != nil {
		return nil, err
	}
	published, err := p.stages.Publish.Publish(ctx, j.ID, output, publish.Metadata{
		SourceDurationSec: info.DurationSec,
		OutputDurationSec: plan.Total(edit.Final),
		Hook:              edit.Plan.Hook,
		Segments:          edit.Final,
		Zooms:             zooms,
		PlanSource:        edit.Plan.Source,
		Notes:             edit.Plan.Notes,
		RenderedAt:        time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	logger.Debug("published", slog.String("video", published.VideoPath), slog.String("result", published.ResultPath))

	return &outcome{published: published}, nil
}

// progress records a milestone under ownerID's lease. A lost lease is
// returned so the run stops; any other write failure is logged and ignored.
func (p *Processor) progress(ctx context.Context, jobID, ownerID string, pct int, msg string, durationSec *float64) error {
	_, err := job.Advance(ctx, p.store, jobID, ownerID, job.Patch{
		Progress:    job.Ptr(pct),
		Message:     job.Ptr(msg),
		DurationSec: durationSec,
		AppendLog:   []job.LogEntry{job.NewLogEntry(msg)},
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, job.ErrLeaseLost) {
		return err
	}
	p.logger.Warn("progress update failed",
		slog.String("job_id", jobID),
		slog.Int("progress", pct),
		slog.String("error", err.Error()),
	)
	return nil
}
