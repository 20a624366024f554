// Package server provides the ops HTTP surface of the worker: health, job
// status, enqueue and retry. DTOs are kept separate from domain types.
package server

import (
	"time"

	"github.com/maauso/autoedit/internal/job"
)

// CreateJobRequest is the HTTP request body for enqueuing a job.
// Input accepts a bare string or an object with storagePath, remoteUri
// (alias gsUri) or downloadUrl.
type CreateJobRequest struct {
	// ID optionally fixes the job id; one is generated when empty.
	ID string `json:"id" validate:"omitempty,max=128,excludesall=/?# "`
	// Input describes where the source video lives.
	Input *job.Input `json:"input" validate:"required"`
}

// JobResponse is the HTTP response for job creation, reads and retries.
type JobResponse struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	Progress          int            `json:"progress"`
	Message           string         `json:"message,omitempty"`
	Input             job.Input      `json:"input"`
	DurationSec       float64        `json:"durationSec,omitempty"`
	FinalArtifactPath string         `json:"finalArtifactPath,omitempty"`
	ResultPath        string         `json:"resultPath,omitempty"`
	VideoURL          string         `json:"videoUrl,omitempty"`
	ResultURL         string         `json:"resultUrl,omitempty"`
	Error             string         `json:"error,omitempty"`
	ErrorCode         string         `json:"errorCode,omitempty"`
	LeaseOwner        string         `json:"leaseOwner,omitempty"`
	Log               []job.LogEntry `json:"log,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:                j.ID,
		Status:            string(j.Status),
		Progress:          j.Progress,
		Message:           j.Message,
		Input:             j.Input,
		DurationSec:       j.DurationSec,
		FinalArtifactPath: j.FinalArtifactPath,
		ResultPath:        j.ResultPath,
		VideoURL:          j.VideoURL,
		ResultURL:         j.ResultURL,
		Error:             j.Error,
		ErrorCode:         string(j.ErrorCode),
		Log:               j.Log,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
	}
	if j.Lease != nil {
		resp.LeaseOwner = j.Lease.OwnerID
	}
	return resp
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// WorkerID is the lease owner id of this process.
	WorkerID string `json:"workerId,omitempty"`
}
