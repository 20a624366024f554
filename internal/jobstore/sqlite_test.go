package jobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autoedit/internal/job"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreSuite(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_SharedFileAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	a, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	j := job.New(job.Input{DownloadURL: "https://example.com/a.mp4"})
	require.NoError(t, a.Create(ctx, j))

	_, err = job.Claim(ctx, a, j.ID, "worker-a")
	require.NoError(t, err)

	_, err = job.Claim(ctx, b, j.ID, "worker-b")
	assert.ErrorIs(t, err, job.ErrTxAborted)

	got, err := b.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-a", got.Lease.OwnerID)
}
