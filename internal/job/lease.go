package job

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Claim moves a queued job to processing under ownerID's lease.
// It returns ErrTxAborted when the job is no longer queued, meaning another
// worker won the race.
func Claim(ctx context.Context, s Store, jobID, ownerID string) (*Job, error) {
	return s.Transact(ctx, jobID, func(cur *Job) (*Patch, error) {
		if cur.Status != StatusQueued {
			return nil, nil
		}
		now := time.Now().UTC()
		return &Patch{
			Status:       Ptr(StatusProcessing),
			Progress:     Ptr(0),
			Lease:        &Lease{OwnerID: ownerID, AcquiredAt: now},
			StartedAt:    &now,
			ClearOutcome: true,
			Message:      Ptr("claimed"),
			AppendLog:    []LogEntry{{At: now, Message: "claimed by " + ownerID}},
		}, nil
	})
}

// ErrNotRetryable is returned by Requeue when the job is not in a terminal state.
var ErrNotRetryable = errors.New("job is not in a terminal state")

// Requeue resets a done or failed job to queued so any worker can claim it again.
func Requeue(ctx context.Context, s Store, jobID string) (*Job, error) {
	j, err := s.Transact(ctx, jobID, func(cur *Job) (*Patch, error) {
		if !cur.Status.IsTerminal() {
			return nil, nil
		}
		return &Patch{
			Status:       Ptr(StatusQueued),
			ClearLease:   true,
			ClearOutcome: true,
			Message:      Ptr("queued for retry"),
			AppendLog:    []LogEntry{NewLogEntry("requeued from " + string(cur.Status))},
		}, nil
	})
	if errors.Is(err, ErrTxAborted) {
		return nil, fmt.Errorf("%w: %s", ErrNotRetryable, jobID)
	}
	return j, err
}

// Reclaim returns a processing job to queued when its lease holder has not
// written to it since staleBefore. ownerID must match the lease observed by the
// caller so a lease renewed by a fresh claim is never stolen.
func Reclaim(ctx context.Context, s Store, jobID, ownerID string, staleBefore time.Time) (*Job, error) {
	return s.Transact(ctx, jobID, func(cur *Job) (*Patch, error) {
		if !cur.OwnedBy(ownerID) || !cur.UpdatedAt.Before(staleBefore) {
			return nil, nil
		}
		return &Patch{
			Status:     Ptr(StatusQueued),
			ClearLease: true,
			Message:    Ptr("lease expired"),
			AppendLog:  []LogEntry{NewLogEntry("lease held by " + ownerID + " expired")},
		}, nil
	})
}

// ErrLeaseLost is returned by Finish when the job is no longer processing
// under the caller's lease.
var ErrLeaseLost = errors.New("lease lost")

// Finish commits a terminal patch for a job processed under ownerID's lease.
// The patch must move the job to done or failed; CompletedAt is stamped and
// the lease is kept as a record of the attempt.
func Finish(ctx context.Context, s Store, jobID, ownerID string, p Patch) (*Job, error) {
	if p.Status == nil || !p.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: finish requires a terminal status", ErrInvalidTransition)
	}
	j, err := s.Transact(ctx, jobID, func(cur *Job) (*Patch, error) {
		if cur.Status != StatusProcessing || !cur.OwnedBy(ownerID) {
			return nil, nil
		}
		now := time.Now().UTC()
		out := p
		out.CompletedAt = &now
		out.AppendLog = append(append([]LogEntry(nil), p.AppendLog...), NewLogEntry(string(*p.Status)))
		return &out, nil
	})
	if errors.Is(err, ErrTxAborted) {
		return nil, fmt.Errorf("%w: %s", ErrLeaseLost, jobID)
	}
	return j, err
}

// Advance commits a progress patch while the job is still processing under
// ownerID's lease. It returns ErrLeaseLost once the lease has been reclaimed,
// so a stale worker stops instead of writing into the next attempt.
func Advance(ctx context.Context, s Store, jobID, ownerID string, p Patch) (*Job, error) {
	if p.Status != nil || p.Lease != nil || p.ClearLease {
		return nil, fmt.Errorf("%w: advance cannot change status or lease", ErrInvalidTransition)
	}
	j, err := s.Transact(ctx, jobID, func(cur *Job) (*Patch, error) {
		if cur.Status != StatusProcessing || !cur.OwnedBy(ownerID) {
			return nil, nil
		}
		out := p
		return &out, nil
	})
	if errors.Is(err, ErrTxAborted) {
		return nil, fmt.Errorf("%w: %s", ErrLeaseLost, jobID)
	}
	return j, err
}
