// Package storage provides temporary working files and object storage.
// It defines the ObjectStore port used by the pipeline to read inputs and
// publish results, with implementations for local disk and S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Static errors for storage operations.
var (
	// ErrObjectNotFound is returned when a read targets a missing object.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrInvalidPath is returned for empty or escaping object paths.
	ErrInvalidPath = errors.New("storage: invalid object path")
	// ErrInvalidAction is returned for an unknown signed URL action.
	ErrInvalidAction = errors.New("storage: invalid signed URL action")
)

// Action selects what a signed URL grants.
type Action string

const (
	// ActionRead signs a download URL.
	ActionRead Action = "read"
	// ActionWrite signs an upload URL.
	ActionWrite Action = "write"
)

// ObjectStore is an opaque blob store addressed by path within a bucket.
type ObjectStore interface {
	// Exists reports whether an object is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Open streams the object at path. Returns ErrObjectNotFound if missing.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// WriteFile stores data at path with the given content type.
	WriteFile(ctx context.Context, path string, data io.Reader, contentType string) error

	// SignedURL returns a time-limited URL granting action on path.
	SignedURL(ctx context.Context, path string, expiry time.Duration, action Action) (string, error)

	// WithBucket returns a store addressing another bucket with the same credentials.
	WithBucket(bucket string) ObjectStore
}

// TempStore manages the local working files of a job.
type TempStore interface {
	// MkdirTemp creates a fresh working directory for one job.
	MkdirTemp(ctx context.Context, name string) (string, error)

	// CleanupTemp removes the specified temporary files or directories.
	// It continues cleanup even if some paths fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}

// Storage is the full storage surface: local working files plus objects.
type Storage interface {
	TempStore
	ObjectStore
}

// CleanPath normalizes an object path and rejects paths escaping the bucket.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" || strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

func validAction(a Action) error {
	if a != ActionRead && a != ActionWrite {
		return fmt.Errorf("%w: %q", ErrInvalidAction, a)
	}
	return nil
}
