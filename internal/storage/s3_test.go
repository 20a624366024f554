package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeS3 serves path-style object requests for a single bucket.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.contentTypes[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Storage(t *testing.T, endpoint string) *S3Storage {
	t.Helper()
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	return storage
}

func TestNewS3Storage(t *testing.T) {
	storage := newTestS3Storage(t, "http://localhost:4566")

	if storage.Bucket() != "test-bucket" {
		t.Errorf("bucket = %v, want %v", storage.Bucket(), "test-bucket")
	}
	if storage.region != "us-east-1" {
		t.Errorf("region = %v, want %v", storage.region, "us-east-1")
	}
}

func TestS3Storage_InheritsLocalStorage(t *testing.T) {
	storage := newTestS3Storage(t, "http://localhost:4566")
	ctx := context.Background()

	dir, err := storage.MkdirTemp(ctx, "job_s3")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	if !strings.HasPrefix(dir, storage.TempDir()) {
		t.Errorf("work dir %s outside temp dir %s", dir, storage.TempDir())
	}

	if err := storage.CleanupTemp(ctx, []string{dir}); err != nil {
		t.Fatalf("CleanupTemp() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("work dir %s still exists", dir)
	}
}

func TestS3Storage_RoundTrip_MockServer(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()

	storage := newTestS3Storage(t, server.URL)
	ctx := context.Background()

	ok, err := storage.Exists(ctx, "results/job-1/output.mp4")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true before upload")
	}

	err = storage.WriteFile(ctx, "results/job-1/output.mp4", bytes.NewReader([]byte("test content")), "video/mp4")
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	fake.mu.Lock()
	body := fake.objects["test-bucket/results/job-1/output.mp4"]
	ct := fake.contentTypes["test-bucket/results/job-1/output.mp4"]
	fake.mu.Unlock()
	if string(body) != "test content" {
		t.Errorf("unexpected body: %s", string(body))
	}
	if ct != "video/mp4" {
		t.Errorf("content type = %q, want video/mp4", ct)
	}

	ok, err = storage.Exists(ctx, "results/job-1/output.mp4")
	if err != nil || !ok {
		t.Fatalf("Exists() after upload = %v, %v", ok, err)
	}

	rc, err := storage.Open(ctx, "results/job-1/output.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, _ := io.ReadAll(rc)
	if string(got) != "test content" {
		t.Errorf("Open() body = %q", got)
	}
}

func TestS3Storage_Open_NotFound(t *testing.T) {
	server := httptest.NewServer(newFakeS3())
	defer server.Close()

	storage := newTestS3Storage(t, server.URL)
	_, err := storage.Open(context.Background(), "missing.mp4")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestS3Storage_WithBucket(t *testing.T) {
	fake := newFakeS3()
	server := httptest.NewServer(fake)
	defer server.Close()

	storage := newTestS3Storage(t, server.URL)
	other := storage.WithBucket("other-bucket")

	err := other.WriteFile(context.Background(), "a.mp4", bytes.NewReader([]byte("x")), "")
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	fake.mu.Lock()
	_, ok := fake.objects["other-bucket/a.mp4"]
	fake.mu.Unlock()
	if !ok {
		t.Error("object not written to other bucket")
	}
	if storage.Bucket() != "test-bucket" {
		t.Error("WithBucket mutated the original store")
	}
}

func TestS3Storage_SignedURL(t *testing.T) {
	storage := newTestS3Storage(t, "http://localhost:4566")
	ctx := context.Background()

	tests := []struct {
		action Action
	}{
		{action: ActionRead},
		{action: ActionWrite},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			raw, err := storage.SignedURL(ctx, "results/job-1/result.json", 30*time.Minute, tt.action)
			if err != nil {
				t.Fatalf("SignedURL() error = %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if u.Path != "/test-bucket/results/job-1/result.json" {
				t.Errorf("path = %v", u.Path)
			}
			if u.Query().Get("X-Amz-Expires") != "1800" {
				t.Errorf("X-Amz-Expires = %v, want 1800", u.Query().Get("X-Amz-Expires"))
			}
			if u.Query().Get("X-Amz-Signature") == "" {
				t.Error("missing signature")
			}
		})
	}

	_, err := storage.SignedURL(ctx, "a", time.Minute, Action("list"))
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}
