package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autoedit/internal/plan"
	"github.com/maauso/autoedit/internal/storage"
)

// flakyStore wraps a store and fails selected operations.
type flakyStore struct {
	storage.ObjectStore
	failWrite string
	failSign  bool
}

func (s *flakyStore) WriteFile(ctx context.Context, p string, r io.Reader, ct string) error {
	if p == s.failWrite {
		return errors.New("bucket unavailable")
	}
	return s.ObjectStore.WriteFile(ctx, p, r, ct)
}

func (s *flakyStore) SignedURL(ctx context.Context, p string, d time.Duration, a storage.Action) (string, error) {
	if s.failSign {
		return "", errors.New("signer unavailable")
	}
	return s.ObjectStore.SignedURL(ctx, p, d, a)
}

func setup(t *testing.T) (*storage.LocalStorage, string) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir(), "", "")
	require.NoError(t, err)
	video := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(video, []byte("rendered"), 0600))
	return store, video
}

func readObject(t *testing.T, s storage.ObjectStore, p string) []byte {
	t.Helper()
	rc, err := s.Open(context.Background(), p)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "results/job-1/output.mp4", VideoPath("job-1"))
	assert.Equal(t, "results/job-1/result.json", ResultPath("job-1"))
}

func TestPublish(t *testing.T) {
	store, video := setup(t)
	p := NewPublisher(store, 0, nil)

	meta := Metadata{
		SourceDurationSec: 60,
		OutputDurationSec: 59,
		Hook:              plan.Segment{Start: 0, End: 4},
		Segments:          []plan.Segment{{Start: 0, End: 30}, {Start: 31, End: 60}},
		PlanSource:        plan.SourceSilence,
	}
	got, err := p.Publish(context.Background(), "job-1", video, meta)
	require.NoError(t, err)

	assert.Equal(t, "results/job-1/output.mp4", got.VideoPath)
	assert.Equal(t, "results/job-1/result.json", got.ResultPath)
	assert.Contains(t, got.VideoURL, "results/job-1/output.mp4")
	assert.Contains(t, got.ResultURL, "results/job-1/result.json")

	assert.Equal(t, "rendered", string(readObject(t, store, got.VideoPath)))

	var stored Metadata
	require.NoError(t, json.Unmarshal(readObject(t, store, got.ResultPath), &stored))
	assert.Equal(t, "job-1", stored.JobID)
	assert.Equal(t, got.VideoPath, stored.VideoPath)
	assert.Equal(t, meta.Segments, stored.Segments)
	assert.Equal(t, plan.SourceSilence, stored.PlanSource)
}

func TestPublish_UploadFailures(t *testing.T) {
	for _, failing := range []string{"results/job-2/output.mp4", "results/job-2/result.json"} {
		t.Run(failing, func(t *testing.T) {
			store, video := setup(t)
			p := NewPublisher(&flakyStore{ObjectStore: store, failWrite: failing}, time.Minute, nil)

			_, err := p.Publish(context.Background(), "job-2", video, Metadata{})
			assert.ErrorIs(t, err, ErrUploadFailed)
		})
	}

	t.Run("missing render", func(t *testing.T) {
		store, _ := setup(t)
		_, err := NewPublisher(store, time.Minute, nil).Publish(context.Background(), "job-2", "/nope.mp4", Metadata{})
		assert.ErrorIs(t, err, ErrUploadFailed)
	})
}

func TestPublish_SigningFailureIsNotFatal(t *testing.T) {
	store, video := setup(t)
	p := NewPublisher(&flakyStore{ObjectStore: store, failSign: true}, time.Minute, nil)

	got, err := p.Publish(context.Background(), "job-3", video, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "results/job-3/output.mp4", got.VideoPath)
	assert.Empty(t, got.VideoURL)
	assert.Empty(t, got.ResultURL)
}
