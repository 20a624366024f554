package job

import (
	"fmt"
	"time"
)

// Patch is a field-level update of a Job.
// Nil fields are left untouched; AppendLog entries are appended in order.
type Patch struct {
	Status            *Status
	Progress          *int
	Lease             *Lease
	ClearLease        bool
	Message           *string
	DurationSec       *float64
	FinalArtifactPath *string
	ResultPath        *string
	VideoURL          *string
	ResultURL         *string
	Error             *string
	ErrorCode         *FailureCode
	StartedAt         *time.Time
	CompletedAt       *time.Time
	// ClearOutcome wipes the artifact, URL, error and completion fields of a previous attempt.
	ClearOutcome bool
	AppendLog    []LogEntry
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// ApplyPatch merges p into j in place.
//
// Progress never decreases unless the same patch moves the job into processing,
// which is how a fresh claim resets it to zero. Every call advances UpdatedAt
// and Version.
func ApplyPatch(j *Job, p Patch, now time.Time) error {
	entering := false
	if p.Status != nil && *p.Status != j.Status {
		if !CanTransition(j.Status, *p.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, *p.Status)
		}
		entering = *p.Status == StatusProcessing
		j.Status = *p.Status
	}

	if p.ClearOutcome {
		j.FinalArtifactPath = ""
		j.ResultPath = ""
		j.VideoURL = ""
		j.ResultURL = ""
		j.Error = ""
		j.ErrorCode = ""
		j.CompletedAt = nil
	}

	if p.Progress != nil {
		v := min(max(*p.Progress, 0), 100)
		if entering || v > j.Progress {
			j.Progress = v
		}
	}

	if p.ClearLease {
		j.Lease = nil
	}
	if p.Lease != nil {
		l := *p.Lease
		j.Lease = &l
	}

	if p.Message != nil {
		j.Message = *p.Message
	}
	if p.DurationSec != nil {
		j.DurationSec = *p.DurationSec
	}
	if p.FinalArtifactPath != nil {
		j.FinalArtifactPath = *p.FinalArtifactPath
	}
	if p.ResultPath != nil {
		j.ResultPath = *p.ResultPath
	}
	if p.VideoURL != nil {
		j.VideoURL = *p.VideoURL
	}
	if p.ResultURL != nil {
		j.ResultURL = *p.ResultURL
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.ErrorCode != nil {
		j.ErrorCode = *p.ErrorCode
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		j.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		j.CompletedAt = &t
	}

	j.Log = append(j.Log, p.AppendLog...)
	j.UpdatedAt = now
	j.Version++
	return nil
}

// Mutate runs fn against a copy of cur and returns the patched copy.
// A nil patch aborts with ErrTxAborted. Store backends call it inside their
// transaction so every backend shares the same merge rules.
func Mutate(cur *Job, fn TxFunc, now time.Time) (*Job, error) {
	p, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrTxAborted
	}
	next := cur.Clone()
	if err := ApplyPatch(next, *p, now); err != nil {
		return nil, err
	}
	return next, nil
}
