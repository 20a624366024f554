package job

import (
	"context"
	"errors"
)

// Static errors for job persistence.
var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")
	// ErrTxAborted is returned by Transact when the callback declines to write.
	ErrTxAborted = errors.New("transaction aborted")
)

// TxFunc inspects the current document and returns the patch to commit,
// or nil to abort. It may run more than once when a backend retries on contention.
type TxFunc func(current *Job) (*Patch, error)

// Store defines the interface for durable job records.
// It acts as a port in the hexagonal architecture pattern.
type Store interface {
	// Create persists a new job. Returns ErrJobExists if the ID is taken.
	Create(ctx context.Context, job *Job) error

	// Get retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, id string) (*Job, error)

	// Transact atomically re-reads the job, calls fn and commits the returned
	// patch. Returns the committed job, or ErrTxAborted when fn returns nil.
	Transact(ctx context.Context, id string, fn TxFunc) (*Job, error)

	// Merge applies a field-level patch without a read-side precondition.
	Merge(ctx context.Context, id string, patch Patch) error

	// QueryOldestWithStatus returns up to limit job IDs with the given status,
	// oldest CreatedAt first. A limit of zero or less returns every match.
	QueryOldestWithStatus(ctx context.Context, status Status, limit int) ([]string, error)
}
