package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maauso/autoedit/internal/job"
)

// Compile-time check that PostgresStore implements job.Store.
var _ job.Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at);
`

// PostgresStore persists jobs in PostgreSQL. Transactions lock the row with
// SELECT ... FOR UPDATE so concurrent claims serialize on the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("jobstore: ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the jobs table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("jobstore: migrate postgres: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create inserts a new job.
func (s *PostgresStore) Create(ctx context.Context, j *job.Job) error {
	doc, err := encode(j)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, created_at, version, doc) VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		j.ID, string(j.Status), j.CreatedAt, j.Version, string(doc),
	)
	if err != nil {
		return fmt.Errorf("jobstore: insert job %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobExists
	}
	return nil
}

// Get retrieves a job by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*job.Job, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM jobs WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	return decode(doc)
}

// Transact locks the row, applies fn's patch and commits.
func (s *PostgresStore) Transact(ctx context.Context, id string, fn job.TxFunc) (*job.Job, error) {
	var out *job.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx, `SELECT doc FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return job.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("jobstore: lock job %s: %w", id, err)
		}

		cur, err := decode(doc)
		if err != nil {
			return err
		}
		next, err := job.Mutate(cur, fn, now())
		if err != nil {
			return err
		}
		data, err := encode(next)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $2, version = $3, doc = $4::jsonb WHERE id = $1`,
			id, string(next.Status), next.Version, string(data),
		); err != nil {
			return fmt.Errorf("jobstore: update job %s: %w", id, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Merge applies patch inside a row-locking transaction.
func (s *PostgresStore) Merge(ctx context.Context, id string, patch job.Patch) error {
	_, err := s.Transact(ctx, id, patchFunc(patch))
	return err
}

// QueryOldestWithStatus returns job IDs with the given status, oldest first.
func (s *PostgresStore) QueryOldestWithStatus(ctx context.Context, status job.Status, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
		string(status), queryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("jobstore: query %s jobs: %w", status, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("jobstore: scan %s jobs: %w", status, err)
	}
	return ids, nil
}
