package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/storage"
)

// mockSigner implements storage.ObjectStore for testing; only SignedURL is used.
type mockSigner struct {
	storage.ObjectStore
	mock.Mock
}

func (m *mockSigner) SignedURL(ctx context.Context, path string, expiry time.Duration, action storage.Action) (string, error) {
	args := m.Called(ctx, path, expiry, action)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *job.MemoryStore) {
	t.Helper()
	store := job.NewMemoryStore()
	return NewHandlers(store, testLogger(), opts...), store
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// finishedJob stores a job that went through claim and a terminal write.
func finishedJob(t *testing.T, store job.Store, status job.Status) *job.Job {
	t.Helper()
	ctx := context.Background()
	j := job.New(job.Input{StoragePath: "uploads/in.mp4"})
	require.NoError(t, store.Create(ctx, j))
	_, err := job.Claim(ctx, store, j.ID, "w1")
	require.NoError(t, err)

	p := job.Patch{Status: job.Ptr(status)}
	if status == job.StatusDone {
		p.FinalArtifactPath = job.Ptr("results/" + j.ID + "/output.mp4")
		p.ResultPath = job.Ptr("results/" + j.ID + "/result.json")
		p.VideoURL = job.Ptr("https://stale.example/video")
	} else {
		p.Error = job.Ptr("render: exit status 1")
		p.ErrorCode = job.Ptr(job.FailureRenderFailed)
	}
	done, err := job.Finish(ctx, store, j.ID, "w1", p)
	require.NoError(t, err)
	return done
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t, WithWorkerID("host-1234"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "host-1234", resp.WorkerID)
}

func TestCreateJob_Success(t *testing.T) {
	tests := []struct {
		name string
		body string
		want job.Input
	}{
		{"storage path string", `{"input":"uploads/a.mp4"}`, job.Input{StoragePath: "uploads/a.mp4"}},
		{"download url string", `{"input":"https://cdn.example/a.mp4"}`, job.Input{DownloadURL: "https://cdn.example/a.mp4"}},
		{"remote uri string", `{"input":"gs://bucket/a.mp4"}`, job.Input{RemoteURI: "gs://bucket/a.mp4"}},
		{"object with alias", `{"input":{"gsUri":"gs://bucket/a.mp4","downloadURL":"https://cdn.example/a.mp4"}}`,
			job.Input{RemoteURI: "gs://bucket/a.mp4", DownloadURL: "https://cdn.example/a.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := newTestHandlers(t)

			rec := postJSON(t, h.CreateJob, tt.body)
			assert.Equal(t, http.StatusAccepted, rec.Code)

			var resp JobResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.ID)
			assert.Equal(t, "queued", resp.Status)
			assert.Equal(t, tt.want, resp.Input)

			stored, err := store.Get(context.Background(), resp.ID)
			require.NoError(t, err)
			assert.Equal(t, job.StatusQueued, stored.Status)
			assert.Equal(t, tt.want, stored.Input)
		})
	}
}

func TestCreateJob_WithID(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := postJSON(t, h.CreateJob, `{"id":"job-custom","input":"uploads/a.mp4"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = postJSON(t, h.CreateJob, `{"id":"job-custom","input":"uploads/b.mp4"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "JOB_EXISTS", decodeError(t, rec).Code)
}

func TestCreateJob_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", "invalid json", "INVALID_JSON"},
		{"missing input", `{}`, "VALIDATION_ERROR"},
		{"empty string input", `{"input":""}`, "INVALID_INPUT"},
		{"empty object input", `{"input":{}}`, "INVALID_INPUT"},
		{"id with slash", `{"id":"a/b","input":"x.mp4"}`, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandlers(t)
			rec := postJSON(t, h.CreateJob, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestGetJob_Success(t *testing.T) {
	h, store := newTestHandlers(t)
	failed := finishedJob(t, store, job.StatusFailed)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+failed.ID, nil)
	req.SetPathValue("id", failed.ID)
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, failed.ID, resp.ID)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "RenderFailed", resp.ErrorCode)
	assert.Equal(t, "w1", resp.LeaseOwner)
	assert.NotEmpty(t, resp.Log)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetJob_RefreshesSignedURLs(t *testing.T) {
	signer := &mockSigner{}
	h, store := newTestHandlers(t, WithSignedURLs(signer, 15*time.Minute))
	done := finishedJob(t, store, job.StatusDone)

	signer.On("SignedURL", mock.Anything, done.FinalArtifactPath, 15*time.Minute, storage.ActionRead).
		Return("https://fresh.example/video", nil)
	signer.On("SignedURL", mock.Anything, done.ResultPath, 15*time.Minute, storage.ActionRead).
		Return("", errors.New("signing unavailable"))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+done.ID, nil)
	req.SetPathValue("id", done.ID)
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://fresh.example/video", resp.VideoURL)
	assert.Empty(t, resp.ResultURL)
	signer.AssertExpectations(t)
}

func TestGetJob_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestGetJob_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	// Don't set path value to simulate missing ID
	rec := httptest.NewRecorder()

	h.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_JOB_ID", decodeError(t, rec).Code)
}

func TestRetryJob(t *testing.T) {
	t.Run("failed job is requeued", func(t *testing.T) {
		h, store := newTestHandlers(t)
		failed := finishedJob(t, store, job.StatusFailed)

		req := httptest.NewRequest(http.MethodPost, "/jobs/"+failed.ID+"/retry", nil)
		req.SetPathValue("id", failed.ID)
		rec := httptest.NewRecorder()
		h.RetryJob(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var resp JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "queued", resp.Status)
		assert.Empty(t, resp.Error)
		assert.Empty(t, resp.ErrorCode)
		assert.Empty(t, resp.LeaseOwner)
	})

	t.Run("queued job is not retryable", func(t *testing.T) {
		h, store := newTestHandlers(t)
		j := job.New(job.Input{StoragePath: "a.mp4"})
		require.NoError(t, store.Create(context.Background(), j))

		req := httptest.NewRequest(http.MethodPost, "/jobs/"+j.ID+"/retry", nil)
		req.SetPathValue("id", j.ID)
		rec := httptest.NewRecorder()
		h.RetryJob(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "JOB_NOT_RETRYABLE", decodeError(t, rec).Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		h, _ := newTestHandlers(t)
		req := httptest.NewRequest(http.MethodPost, "/jobs/nope/retry", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.RetryJob(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_Integration(t *testing.T) {
	h, store := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	// Test health endpoint
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Test POST /jobs
	req = httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(`{"input":{"storagePath":"uploads/a.mp4"}}`)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var created JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	// Test GET /jobs/{id}
	req = httptest.NewRequest(http.MethodGet, "/jobs/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Test POST /jobs/{id}/retry on a finished job
	failed := finishedJob(t, store, job.StatusFailed)
	req = httptest.NewRequest(http.MethodPost, "/jobs/"+failed.ID+"/retry", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), Config{MaxBodyBytes: 64})

	body := `{"input":{"storagePath":"uploads/` + strings.Repeat("a", 128) + `.mp4"}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "REQUEST_TOO_LARGE", decodeError(t, rec).Code)
}

func TestWithValidator(t *testing.T) {
	v := validator.New()
	h, _ := newTestHandlers(t, WithValidator(v))
	assert.Same(t, v, h.validator)

	fallback, _ := newTestHandlers(t, WithValidator(nil))
	assert.NotNil(t, fallback.validator)
}

func TestRecover(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := Recover(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h, store := newTestHandlers(t)
	router := NewRouter(h, logger, DefaultConfig())

	failed := finishedJob(t, store, job.StatusFailed)
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+failed.ID+"/retry", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "status=202")
	assert.Contains(t, buf.String(), "route=\"POST /jobs/{id}/retry\"")
	assert.Contains(t, buf.String(), "job_id="+failed.ID)

	buf.Reset()
	teapot := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	teapot.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/x", nil))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/jobs/x")

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotContains(t, buf.String(), "path=/health", "successful reads log at debug")
}
