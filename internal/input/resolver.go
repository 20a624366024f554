// Package input fetches a job's source video into local working storage.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/maauso/autoedit/internal/job"
	"github.com/maauso/autoedit/internal/storage"
)

// Static errors for input resolution.
var (
	// ErrInputNotFound is returned when the declared source object does not exist.
	ErrInputNotFound = errors.New("input: source not found")
	// ErrDownloadFailed is returned when every listed source errors out.
	ErrDownloadFailed = errors.New("input: download failed")
	// ErrInvalidRemoteURI is returned for a remote URI without a bucket or path.
	ErrInvalidRemoteURI = errors.New("input: invalid remote URI")
	// ErrTooManyRedirects is returned when a download exceeds the redirect limit.
	ErrTooManyRedirects = errors.New("input: too many redirects")
)

// MaxRedirects is the number of HTTP redirects followed for a download URL.
const MaxRedirects = 5

var unsafeExt = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Resolved describes the fetched local copy of an input.
type Resolved struct {
	Path   string
	Source job.Source
	Bytes  int64
}

// Resolver fetches inputs from object storage or over HTTP.
type Resolver struct {
	objects    storage.ObjectStore
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for download URLs.
// Its redirect policy is replaced by the resolver's own.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver reading storage paths from objects.
func NewResolver(objects storage.ObjectStore, opts ...Option) *Resolver {
	r := &Resolver{
		objects:    objects,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	c := *r.httpClient
	c.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, MaxRedirects)
		}
		return nil
	}
	r.httpClient = &c
	return r
}

// Resolve fetches the first source of in that succeeds into dir.
// Sources are tried in the order returned by in.Sources and never combined.
// If every failure was a missing object the error wraps ErrInputNotFound,
// otherwise ErrDownloadFailed.
func (r *Resolver) Resolve(ctx context.Context, in job.Input, dir string) (*Resolved, error) {
	sources := in.Sources()
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no input source provided", ErrInputNotFound)
	}

	var errs []error
	allNotFound := true
	for _, src := range sources {
		res, err := r.fetch(ctx, src, dir)
		if err == nil {
			r.logger.Info("input resolved",
				slog.String("kind", string(src.Kind)),
				slog.String("path", res.Path),
				slog.Int64("bytes", res.Bytes),
			)
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, ctx.Err())
		}

		r.logger.Warn("input source failed, trying next",
			slog.String("kind", string(src.Kind)),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, ErrInputNotFound) {
			allNotFound = false
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Kind, err))
	}

	joined := errors.Join(errs...)
	if allNotFound {
		return nil, joined
	}
	return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, joined)
}

func (r *Resolver) fetch(ctx context.Context, src job.Source, dir string) (*Resolved, error) {
	switch src.Kind {
	case job.SourceStoragePath:
		return r.fromStore(ctx, r.objects, src, src.Location, dir)
	case job.SourceRemoteURI:
		bucket, key, err := ParseRemoteURI(src.Location)
		if err != nil {
			return nil, err
		}
		return r.fromStore(ctx, r.objects.WithBucket(bucket), src, key, dir)
	case job.SourceDownloadURL:
		return r.download(ctx, src, dir)
	default:
		return nil, fmt.Errorf("input: unknown source kind %q", src.Kind)
	}
}

func (r *Resolver) fromStore(ctx context.Context, objects storage.ObjectStore, src job.Source, key, dir string) (*Resolved, error) {
	ok, err := objects.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check source: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: source file not found: %s", ErrInputNotFound, key)
	}

	rc, err := objects.Open(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrInputNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = rc.Close() }()

	return writeLocal(rc, dir, key, src)
}

func (r *Resolver) download(ctx context.Context, src job.Source, dir string) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redact(src.Location), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", redact(src.Location), resp.StatusCode)
	}

	return writeLocal(resp.Body, dir, resp.Request.URL.Path, src)
}

func writeLocal(body io.Reader, dir, name string, src job.Source) (*Resolved, error) {
	dest := filepath.Join(dir, "input"+extension(name))
	f, err := os.Create(dest) // #nosec G304 - dest is inside the job work dir
	if err != nil {
		return nil, fmt.Errorf("create local input: %w", err)
	}

	n, err := io.Copy(f, body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return nil, fmt.Errorf("write local input: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("close local input: %w", err)
	}

	return &Resolved{Path: dest, Source: src, Bytes: n}, nil
}

// ParseRemoteURI splits "scheme://bucket/path" or "bucket/path" into its
// bucket and object path.
func ParseRemoteURI(uri string) (bucket, key string, err error) {
	rest := strings.TrimSpace(uri)
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	idx := strings.Index(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRemoteURI, uri)
	}
	return rest[:idx], rest[idx+1:], nil
}

func extension(name string) string {
	ext := path.Ext(name)
	if len(ext) < 2 || len(ext) > 6 {
		return ".mp4"
	}
	clean := strings.ToLower(unsafeExt.ReplaceAllString(ext[1:], ""))
	if clean == "" {
		return ".mp4"
	}
	return "." + clean
}

// redact hides query strings, which often carry access tokens.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i] + "?<redacted>"
	}
	return rawURL
}
