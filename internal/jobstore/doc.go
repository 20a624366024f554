// Package jobstore provides durable job.Store backends.
//
// Every backend stores the whole job record as one JSON document next to the
// columns it needs for querying (status, creation time, version), and applies
// patches through job.Mutate / job.ApplyPatch so merge rules are identical
// across backends. The backends differ only in how they make the
// read-modify-write atomic: row locks (Postgres), an immediate write lock
// (SQLite), WATCH/MULTI (Redis) or a version-guarded conditional update
// (Supabase PostgREST).
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/maauso/autoedit/internal/job"
)

// maxOptimisticRetries bounds re-runs of a transaction that lost a
// compare-and-swap race on the optimistic backends.
const maxOptimisticRetries = 10

// ErrContention is returned when an optimistic transaction keeps losing races.
var ErrContention = errors.New("jobstore: too much contention")

func encode(j *job.Job) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("jobstore: marshal job %s: %w", j.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshal job: %w", err)
	}
	if j.Log == nil {
		j.Log = make([]job.LogEntry, 0)
	}
	return &j, nil
}

func patchFunc(p job.Patch) job.TxFunc {
	return func(*job.Job) (*job.Patch, error) { return &p, nil }
}

// queryLimit maps a non-positive limit to "no limit" for SQL backends.
func queryLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}

func now() time.Time {
	return time.Now().UTC()
}
