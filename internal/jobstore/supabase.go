package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/maauso/autoedit/internal/job"
)

// Compile-time check that SupabaseStore implements job.Store.
var _ job.Store = (*SupabaseStore)(nil)

// ErrSupabaseConfig is returned when the URL or service key is missing.
var ErrSupabaseConfig = errors.New("jobstore: supabase URL and service key are required")

// SupabaseStore persists jobs in a Supabase (PostgREST) table with columns
// id, status, created_at, version and doc (jsonb).
//
// PostgREST has no interactive transactions, so Transact reads the row and
// writes it back with a PATCH filtered on the version it read. An empty
// response means another writer got there first and the transaction is re-run.
type SupabaseStore struct {
	client *postgrest.Client
	table  string
}

type supabaseRow struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Version   int64           `json:"version"`
	Doc       json.RawMessage `json:"doc"`
}

// NewSupabaseStore creates a store for table on the Supabase project at baseURL.
func NewSupabaseStore(baseURL, serviceKey, table string) (*SupabaseStore, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, ErrSupabaseConfig
	}
	if table == "" {
		table = "jobs"
	}
	client := postgrest.NewClient(strings.TrimRight(baseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("jobstore: create postgrest client: %w", client.ClientError)
	}
	return &SupabaseStore{client: client, table: table}, nil
}

func toRow(j *job.Job) (supabaseRow, error) {
	doc, err := encode(j)
	if err != nil {
		return supabaseRow{}, err
	}
	return supabaseRow{
		ID:        j.ID,
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt,
		Version:   j.Version,
		Doc:       doc,
	}, nil
}

// Create inserts a new job row.
func (s *SupabaseStore) Create(ctx context.Context, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := toRow(j)
	if err != nil {
		return err
	}
	var inserted []supabaseRow
	_, err = s.client.From(s.table).Insert(row, false, "", "representation", "").ExecuteTo(&inserted)
	if err != nil {
		// 23505 is Postgres' unique_violation.
		if strings.Contains(err.Error(), "23505") {
			return job.ErrJobExists
		}
		return fmt.Errorf("jobstore: insert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SupabaseStore) getRow(ctx context.Context, id string) (*supabaseRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []supabaseRow
	_, err := s.client.From(s.table).Select("*", "", false).Eq("id", id).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, job.ErrJobNotFound
	}
	return &rows[0], nil
}

// Get retrieves a job by ID.
func (s *SupabaseStore) Get(ctx context.Context, id string) (*job.Job, error) {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return decode(row.Doc)
}

// Transact applies fn's patch with a version-guarded conditional update.
func (s *SupabaseStore) Transact(ctx context.Context, id string, fn job.TxFunc) (*job.Job, error) {
	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		row, err := s.getRow(ctx, id)
		if err != nil {
			return nil, err
		}
		cur, err := decode(row.Doc)
		if err != nil {
			return nil, err
		}
		next, err := job.Mutate(cur, fn, now())
		if err != nil {
			return nil, err
		}
		doc, err := encode(next)
		if err != nil {
			return nil, err
		}

		update := map[string]any{
			"status":  string(next.Status),
			"version": next.Version,
			"doc":     json.RawMessage(doc),
		}
		var updated []supabaseRow
		_, err = s.client.From(s.table).
			Update(update, "representation", "").
			Eq("id", id).
			Eq("version", strconv.FormatInt(row.Version, 10)).
			ExecuteTo(&updated)
		if err != nil {
			return nil, fmt.Errorf("jobstore: update job %s: %w", id, err)
		}
		if len(updated) == 1 {
			return next, nil
		}
	}
	return nil, fmt.Errorf("%w: job %s", ErrContention, id)
}

// Merge applies patch with a version-guarded conditional update.
func (s *SupabaseStore) Merge(ctx context.Context, id string, patch job.Patch) error {
	_, err := s.Transact(ctx, id, patchFunc(patch))
	return err
}

// QueryOldestWithStatus returns job IDs with the given status, oldest first.
func (s *SupabaseStore) QueryOldestWithStatus(ctx context.Context, status job.Status, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := s.client.From(s.table).
		Select("id", "", false).
		Eq("status", string(status)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true})
	if limit > 0 {
		q = q.Limit(limit, "")
	}

	var rows []supabaseRow
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("jobstore: query %s jobs: %w", status, err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}
