// Package id provides unique identifier generation for jobs and workers.
package id

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-3f1c9a52-6a0e-4d1b-9a53-2b9c1f5e8d11
func Generate() string {
	return "job-" + uuid.NewString()
}

// Worker creates an owner ID for a worker process.
// The hostname prefix makes lease owners readable in job records; the random
// suffix keeps two workers on the same host distinct.
func Worker() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
