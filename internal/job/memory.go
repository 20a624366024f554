package job

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// It uses a map with a mutex held across each transaction, so Transact is
// serializable within one process. Suitable for development and testing;
// use a jobstore backend when more than one worker process runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new job. Stores a clone to avoid external mutations.
func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get retrieves a job by its ID.
// Returns a clone to prevent external mutations.
func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Transact runs fn under the store lock and commits its patch.
func (s *MemoryStore) Transact(ctx context.Context, id string, fn TxFunc) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	next, err := Mutate(cur, fn, s.now())
	if err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

// Merge applies patch to the stored job.
func (s *MemoryStore) Merge(_ context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	next := cur.Clone()
	if err := ApplyPatch(next, patch, s.now()); err != nil {
		return err
	}
	s.jobs[id] = next
	return nil
}

// QueryOldestWithStatus returns job IDs with the given status, oldest first.
func (s *MemoryStore) QueryOldestWithStatus(_ context.Context, status Status, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*Job, 0)
	for _, j := range s.jobs {
		if j.Status == status {
			matches = append(matches, j)
		}
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].CreatedAt.Equal(matches[b].CreatedAt) {
			return matches[a].ID < matches[b].ID
		}
		return matches[a].CreatedAt.Before(matches[b].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	ids := make([]string, len(matches))
	for i, j := range matches {
		ids[i] = j.ID
	}
	return ids, nil
}
