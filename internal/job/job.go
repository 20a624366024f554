// Package job provides the Job Record for the video edit pipeline.
// It includes the status state machine, lease and input descriptor types,
// field-level patch semantics shared by every store backend, and the
// transactional claim, requeue and reclaim operations built on the Store port.
package job

import (
	"errors"
	"slices"
	"time"

	"github.com/maauso/autoedit/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a worker to claim it.
	StatusQueued Status = "queued"
	// StatusProcessing indicates a worker holds the lease and is running the pipeline.
	StatusProcessing Status = "processing"
	// StatusDone indicates the job finished and its artifact was published.
	StatusDone Status = "done"
	// StatusFailed indicates the job stopped on a fatal stage error.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// processing -> queued is only taken by the stale lease reclaim; done/failed -> queued
// only by an explicit retry.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusDone, StatusFailed, StatusQueued},
	StatusDone:       {StatusQueued},
	StatusFailed:     {StatusQueued},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsValid returns true if the status is one of the known states.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal returns true for done and failed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// FailureCode classifies the fatal cause written to a failed job.
type FailureCode string

const (
	FailureInputNotFound      FailureCode = "InputNotFound"
	FailureDownloadFailed     FailureCode = "DownloadFailed"
	FailureProbeFailed        FailureCode = "ProbeFailed"
	FailureNoSegmentsToRender FailureCode = "NoSegmentsToRender"
	FailureRenderFailed       FailureCode = "RenderFailed"
	FailureUploadFailed       FailureCode = "UploadFailed"
	FailureUnexpected         FailureCode = "UnexpectedError"
)

// Lease records which worker owns a job's processing.
type Lease struct {
	OwnerID    string    `json:"ownerId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// LogEntry is one timestamped line of the job's diagnostic log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// NewLogEntry creates a log entry stamped with the current UTC time.
func NewLogEntry(msg string) LogEntry {
	return LogEntry{At: time.Now().UTC(), Message: msg}
}

// Job is the persisted record of one video edit request.
// Values handed out by a Store are snapshots; mutate them only through a Patch.
type Job struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Lease is set when a worker claims the job.
	Lease *Lease `json:"lease,omitempty"`
	// Input describes where the source video lives.
	Input Input `json:"input"`
	// Message is a short label of the stage currently running.
	Message string `json:"message,omitempty"`
	// DurationSec is the probed source duration.
	DurationSec float64 `json:"durationSec,omitempty"`
	// FinalArtifactPath is the storage path of the rendered output.
	FinalArtifactPath string `json:"finalArtifactPath,omitempty"`
	// ResultPath is the storage path of the result metadata JSON.
	ResultPath string `json:"resultPath,omitempty"`
	// VideoURL is a time-limited signed read URL for the output.
	VideoURL string `json:"videoUrl,omitempty"`
	// ResultURL is a time-limited signed read URL for the metadata JSON.
	ResultURL string `json:"resultUrl,omitempty"`
	// Error contains the failure reason if the job failed.
	Error string `json:"error,omitempty"`
	// ErrorCode classifies Error.
	ErrorCode FailureCode `json:"errorCode,omitempty"`
	// Log is the append-only diagnostic log.
	Log []LogEntry `json:"log"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the job was last written.
	UpdatedAt time.Time `json:"updatedAt"`
	// StartedAt is when the current attempt was claimed.
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Version increases on every write and guards optimistic stores.
	Version int64 `json:"version"`
}

// New creates a new queued Job with a generated ID.
func New(in Input) *Job {
	return NewWithID(id.Generate(), in)
}

// NewWithID creates a new queued Job with the specified ID.
// Useful for testing or when the ID is generated by the caller.
func NewWithID(jobID string, in Input) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		Input:     in,
		Log:       make([]LogEntry, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone creates a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.Lease != nil {
		l := *j.Lease
		c.Lease = &l
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Log = make([]LogEntry, len(j.Log))
	copy(c.Log, j.Log)
	return &c
}

// OwnedBy reports whether the job is processing under the given owner's lease.
func (j *Job) OwnedBy(ownerID string) bool {
	return j.Status == StatusProcessing && j.Lease != nil && j.Lease.OwnerID == ownerID
}
