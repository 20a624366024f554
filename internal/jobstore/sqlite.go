package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/maauso/autoedit/internal/job"
)

// Compile-time check that SQLiteStore implements job.Store.
var _ job.Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	version    INTEGER NOT NULL DEFAULT 0,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at);
`

// SQLiteStore persists jobs in a SQLite database file.
// Transactions open with BEGIN IMMEDIATE, which takes the database write lock
// up front, so two processes sharing the file cannot both claim a job.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open sqlite %s: %w", path, err)
	}
	// One connection per process keeps SQLITE_BUSY out of the hot path; other
	// processes still serialize on the immediate write lock.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobstore: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new job.
func (s *SQLiteStore) Create(ctx context.Context, j *job.Job) error {
	doc, err := encode(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, version, doc) VALUES (?, ?, ?, ?, ?)`,
		j.ID, string(j.Status), j.CreatedAt.UnixNano(), j.Version, string(doc),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return job.ErrJobExists
	}
	if err != nil {
		return fmt.Errorf("jobstore: insert job %s: %w", j.ID, err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*job.Job, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	return decode([]byte(doc))
}

// Transact applies fn's patch inside an immediate transaction.
func (s *SQLiteStore) Transact(ctx context.Context, id string, fn job.TxFunc) (*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: read job %s: %w", id, err)
	}

	cur, err := decode([]byte(doc))
	if err != nil {
		return nil, err
	}
	next, err := job.Mutate(cur, fn, now())
	if err != nil {
		return nil, err
	}
	data, err := encode(next)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, version = ?, doc = ? WHERE id = ?`,
		string(next.Status), next.Version, string(data), id,
	); err != nil {
		return nil, fmt.Errorf("jobstore: update job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobstore: commit job %s: %w", id, err)
	}
	return next, nil
}

// Merge applies patch inside an immediate transaction.
func (s *SQLiteStore) Merge(ctx context.Context, id string, patch job.Patch) error {
	_, err := s.Transact(ctx, id, patchFunc(patch))
	return err
}

// QueryOldestWithStatus returns job IDs with the given status, oldest first.
func (s *SQLiteStore) QueryOldestWithStatus(ctx context.Context, status job.Status, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(status), queryLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("jobstore: query %s jobs: %w", status, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("jobstore: scan %s jobs: %w", status, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
