// Package worker runs the queue claimer: it polls the job store for queued
// jobs, claims one at a time through the store transaction and hands it to
// the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/autoedit/internal/job"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultReclaimInterval = time.Minute
	DefaultBatchSize       = 10

	// maxSweepFailures is how many consecutive failed sweeps stop Run.
	maxSweepFailures = 5
)

// Processor runs a claimed job to a terminal state.
type Processor interface {
	// Process runs every stage and records the outcome on the job.
	Process(ctx context.Context, j *job.Job, ownerID string) error
	// Fail records cause as the job's terminal failure.
	Fail(ctx context.Context, jobID, ownerID string, cause error) error
}

// Worker claims and processes jobs strictly one at a time.
type Worker struct {
	store           job.Store
	proc            Processor
	id              string
	pollInterval    time.Duration
	leaseTimeout    time.Duration
	reclaimInterval time.Duration
	batch           int
	logger          *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how often the store is polled when idle.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLeaseTimeout enables the reclaim sweep. Processing jobs not written
// for longer than timeout are returned to the queue every interval.
func WithLeaseTimeout(timeout, interval time.Duration) Option {
	return func(w *Worker) {
		w.leaseTimeout = timeout
		if interval > 0 {
			w.reclaimInterval = interval
		}
	}
}

// WithBatchSize sets how many candidates are read per poll.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Worker identified by ownerID.
func New(store job.Store, proc Processor, ownerID string, opts ...Option) *Worker {
	w := &Worker{
		store:           store,
		proc:            proc,
		id:              ownerID,
		pollInterval:    DefaultPollInterval,
		reclaimInterval: DefaultReclaimInterval,
		batch:           DefaultBatchSize,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(slog.String("worker_id", ownerID))
	return w
}

// ID returns the lease owner id of this worker.
func (w *Worker) ID() string {
	return w.id
}

// Run polls until ctx is cancelled. A job in flight when ctx is cancelled
// sees the cancellation through its own context and fails. Run returns an
// error only when the reclaim sweep keeps failing.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("lease_timeout", w.leaseTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	if w.leaseTimeout > 0 {
		g.Go(func() error { return w.sweepLoop(gctx) })
	}
	g.Go(func() error { return w.pollLoop(gctx) })

	err := g.Wait()
	if err != nil {
		w.logger.Error("worker stopped", slog.String("error", err.Error()))
		return err
	}
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before waiting for the next tick.
		for ctx.Err() == nil {
			handled, err := w.Poll(ctx)
			if err != nil {
				w.logger.Error("poll failed", slog.String("error", err.Error()))
				break
			}
			if !handled {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll claims at most one queued job and processes it. It reports whether
// a job was claimed. Job failures are recorded on the job, not returned.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	j, err := w.claimNext(ctx)
	if err != nil || j == nil {
		return false, err
	}

	if err := w.process(ctx, j); err != nil {
		w.logger.Warn("job finished with error",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

// claimNext tries the oldest queued candidates in order and returns the
// first one whose claim transaction commits, or nil when none is left.
func (w *Worker) claimNext(ctx context.Context) (*job.Job, error) {
	ids, err := w.store.QueryOldestWithStatus(ctx, job.StatusQueued, w.batch)
	if err != nil {
		return nil, fmt.Errorf("query queued jobs: %w", err)
	}

	for _, id := range ids {
		j, err := job.Claim(ctx, w.store, id, w.id)
		switch {
		case err == nil:
			w.logger.Info("job claimed", slog.String("job_id", id))
			return j, nil
		case errors.Is(err, job.ErrTxAborted), errors.Is(err, job.ErrJobNotFound):
			w.logger.Debug("candidate taken", slog.String("job_id", id))
		default:
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
	}
	return nil, nil
}

func (w *Worker) process(ctx context.Context, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", slog.String("job_id", j.ID), slog.Any("panic", r))
			err = w.proc.Fail(ctx, j.ID, w.id, fmt.Errorf("panic: %v", r))
		}
	}()
	return w.proc.Process(ctx, j, w.id)
}

func (w *Worker) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.reclaimInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := w.Sweep(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			failures++
			w.logger.Error("reclaim sweep failed",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			if failures >= maxSweepFailures {
				return fmt.Errorf("reclaim sweep failed %d times: %w", failures, err)
			}
		default:
			failures = 0
			if n > 0 {
				w.logger.Warn("reclaimed stale jobs", slog.Int("count", n))
			}
		}
	}
}

// Sweep returns processing jobs whose lease holder has not written to them
// within the lease timeout to the queue. Every processing job is inspected,
// not just one batch. It returns how many were reclaimed.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	if w.leaseTimeout <= 0 {
		return 0, nil
	}
	ids, err := w.store.QueryOldestWithStatus(ctx, job.StatusProcessing, 0)
	if err != nil {
		return 0, fmt.Errorf("query processing jobs: %w", err)
	}

	staleBefore := time.Now().Add(-w.leaseTimeout)
	reclaimed := 0
	for _, id := range ids {
		cur, err := w.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, job.ErrJobNotFound) {
				continue
			}
			return reclaimed, fmt.Errorf("get %s: %w", id, err)
		}
		if cur.Lease == nil || !cur.UpdatedAt.Before(staleBefore) {
			continue
		}

		_, err = job.Reclaim(ctx, w.store, id, cur.Lease.OwnerID, staleBefore)
		switch {
		case err == nil:
			reclaimed++
			w.logger.Warn("lease expired, job requeued",
				slog.String("job_id", id),
				slog.String("owner_id", cur.Lease.OwnerID),
				slog.Time("updated_at", cur.UpdatedAt),
			)
		case errors.Is(err, job.ErrTxAborted):
		default:
			return reclaimed, fmt.Errorf("reclaim %s: %w", id, err)
		}
	}
	return reclaimed, nil
}
