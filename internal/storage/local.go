package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// DefaultBucket is the bucket directory used when none is configured.
const DefaultBucket = "default"

// LocalStorage implements Storage on local disk.
// Temporary files live in tempDir; objects live under root/<bucket>/<path>.
type LocalStorage struct {
	tempDir string
	root    string
	bucket  string
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, os.TempDir()/autoedit is used. If root is empty,
// objects are kept under tempDir/objects. Directories are created if missing.
func NewLocalStorage(tempDir, root, bucket string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "autoedit")
	}
	if root == "" {
		root = filepath.Join(tempDir, "objects")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	for _, dir := range []string{tempDir, filepath.Join(root, bucket)} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	return &LocalStorage{tempDir: tempDir, root: root, bucket: bucket}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// MkdirTemp creates a fresh working directory inside tempDir.
func (s *LocalStorage) MkdirTemp(_ context.Context, name string) (string, error) {
	dir, err := os.MkdirTemp(s.tempDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	return dir, nil
}

// CleanupTemp removes the specified temporary files and directories.
// It continues cleanup even if some paths fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}
		if p == "" {
			continue
		}

		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove temp path %s: %w", p, err)
		}
	}
	return firstErr
}

func (s *LocalStorage) objectPath(p string) (string, error) {
	cleaned, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, s.bucket, filepath.FromSlash(cleaned)), nil
}

// Exists reports whether an object file exists.
func (s *LocalStorage) Exists(_ context.Context, p string) (bool, error) {
	full, err := s.objectPath(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %s: %w", p, err)
	}
	return !info.IsDir(), nil
}

// Open opens the object file for reading.
func (s *LocalStorage) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := s.objectPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) // #nosec G304 - path is cleaned and rooted
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, s.bucket, p)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", p, err)
	}
	return f, nil
}

// WriteFile writes the object atomically through a sibling temp file.
func (s *LocalStorage) WriteFile(ctx context.Context, p string, data io.Reader, _ string) error {
	full, err := s.objectPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(full), ".upload_*")
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write object %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close object %s: %w", p, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit object %s: %w", p, err)
	}
	return nil
}

// SignedURL returns a file:// URL carrying the expiry and action.
// Local files need no signature; the parameters keep the shape of a signed URL.
func (s *LocalStorage) SignedURL(_ context.Context, p string, expiry time.Duration, action Action) (string, error) {
	if err := validAction(action); err != nil {
		return "", err
	}
	full, err := s.objectPath(p)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolve object path: %w", err)
	}

	q := url.Values{}
	q.Set("action", string(action))
	q.Set("expires", strconv.FormatInt(time.Now().Add(expiry).Unix(), 10))
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

// WithBucket returns a LocalStorage rooted at another bucket directory.
func (s *LocalStorage) WithBucket(bucket string) ObjectStore {
	if bucket == "" || bucket == s.bucket {
		return s
	}
	c := *s
	c.bucket = bucket
	return &c
}
