package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/storage"
)

// Handlers contains the HTTP handlers for the ops API.
type Handlers struct {
	store     job.Store
	objects   storage.ObjectStore
	urlTTL    time.Duration
	workerID  string
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithSignedURLs makes GET /jobs/{id} issue fresh read URLs for finished
// jobs instead of returning the ones stored at publish time.
func WithSignedURLs(objects storage.ObjectStore, ttl time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.objects = objects
		h.urlTTL = ttl
	}
}

// WithValidator sets the validator used for request DTOs.
func WithValidator(v *validator.Validate) HandlerOption {
	return func(h *Handlers) {
		if v != nil {
			h.validator = v
		}
	}
}

// WithWorkerID reports the worker's lease owner id on /health.
func WithWorkerID(id string) HandlerOption {
	return func(h *Handlers) {
		h.workerID = id
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store job.Store, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		store:     store,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", WorkerID: h.workerID})
}

// CreateJob handles POST /jobs requests. The job is stored as queued and
// picked up by whichever worker claims it first.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		if errors.Is(err, job.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if req.Input.IsZero() {
		writeError(w, http.StatusBadRequest, "input declares no source", "INVALID_INPUT")
		return
	}

	var j *job.Job
	if req.ID != "" {
		j = job.NewWithID(req.ID, *req.Input)
	} else {
		j = job.New(*req.Input)
	}
	if err := h.store.Create(r.Context(), j); err != nil {
		if errors.Is(err, job.ErrJobExists) {
			writeError(w, http.StatusConflict, "job already exists", "JOB_EXISTS")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("job queued",
		slog.String("job_id", j.ID),
		slog.Int("sources", len(j.Input.Sources())),
	)

	writeJSON(w, http.StatusAccepted, newJobResponse(j))
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		h.storeError(w, jobID, err, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	resp := newJobResponse(found)
	if found.Status == job.StatusDone && h.objects != nil {
		resp.VideoURL = h.sign(r, found.FinalArtifactPath, resp.VideoURL)
		resp.ResultURL = h.sign(r, found.ResultPath, resp.ResultURL)
	}

	writeJSON(w, http.StatusOK, resp)
}

// RetryJob handles POST /jobs/{id}/retry requests. Only done or failed jobs
// can be requeued.
func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	requeued, err := job.Requeue(r.Context(), h.store, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotRetryable) {
			writeError(w, http.StatusConflict, "job is still queued or processing", "JOB_NOT_RETRYABLE")
			return
		}
		h.storeError(w, jobID, err, "failed to retry job", "JOB_RETRY_FAILED")
		return
	}

	h.logger.Info("job requeued", slog.String("job_id", jobID))
	writeJSON(w, http.StatusAccepted, newJobResponse(requeued))
}

func (h *Handlers) storeError(w http.ResponseWriter, jobID string, err error, msg, code string) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error(msg,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, msg, code)
}

// sign returns a fresh read URL for objectPath, or fallback if signing fails.
func (h *Handlers) sign(r *http.Request, objectPath, fallback string) string {
	if objectPath == "" {
		return fallback
	}
	url, err := h.objects.SignedURL(r.Context(), objectPath, h.urlTTL, storage.ActionRead)
	if err != nil {
		h.logger.Warn("failed to sign result URL",
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	return url
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
