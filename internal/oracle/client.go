// Package oracle is a client for the transcription and planning service.
// It speaks the OpenAI-compatible HTTP API. Responses are untrusted text:
// callers extract and validate any JSON they expect.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Static errors for oracle client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("oracle: API key is not set")
	// ErrEmptyAudio is returned when Transcribe is called without audio.
	ErrEmptyAudio = errors.New("oracle: audio is empty")
	// ErrEmptyResponse is returned when the response carries no content.
	ErrEmptyResponse = errors.New("oracle: empty response")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("oracle: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("oracle: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("oracle: request failed")
	// ErrNoJSONObject is returned when a response contains no JSON object.
	ErrNoJSONObject = errors.New("oracle: no JSON object in response")
)

// Client defines the oracle operations used by the planners.
type Client interface {
	// Transcribe converts speech audio (WAV bytes) to text.
	Transcribe(ctx context.Context, audio []byte) (string, error)

	// RequestJSON sends a system and user prompt and returns the raw reply text.
	RequestJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	apiKey          string
	baseURL         string
	planModel       string
	transcribeModel string
	httpClient      *http.Client
	maxRetries      int
	baseBackoff     time.Duration
	logger          *slog.Logger
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		if url != "" {
			hc.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModels sets the planning and transcription models.
func WithModels(plan, transcribe string) ClientOption {
	return func(hc *HTTPClient) {
		if plan != "" {
			hc.planModel = plan
		}
		if transcribe != "" {
			hc.transcribeModel = transcribe
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = &http.Client{Timeout: d}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		if l != nil {
			hc.logger = l
		}
	}
}

// NewClient creates a new oracle HTTP client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c := &HTTPClient{
		apiKey:          apiKey,
		baseURL:         "https://api.openai.com/v1",
		planModel:       "gpt-4o-mini",
		transcribeModel: "whisper-1",
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		maxRetries:      3,
		baseBackoff:     1 * time.Second,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Transcribe uploads audio to /audio/transcriptions and returns the text.
func (c *HTTPClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("oracle: write multipart: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("oracle: write multipart: %w", err)
	}
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("oracle: write multipart: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("oracle: write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("oracle: close multipart: %w", err)
	}

	var resp transcriptionResponse
	url := c.baseURL + "/audio/transcriptions"
	if err := c.doRequestWithRetry(ctx, url, body.Bytes(), mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// RequestJSON asks the planning model for a JSON reply.
// The returned text is not guaranteed to be JSON; see ExtractJSONObject.
func (c *HTTPClient) RequestJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.planModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("oracle: marshal request: %w", err)
	}

	var resp chatResponse
	url := c.baseURL + "/chat/completions"
	if err := c.doRequestWithRetry(ctx, url, bodyBytes, "application/json", &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// doRequestWithRetry performs a POST with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, url string, body []byte, contentType string, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying oracle request",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("oracle: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, url, body, contentType, result)
		if err == nil {
			return nil
		}

		// Check if error is retryable
		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("oracle: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, url string, body []byte, contentType string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oracle: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("oracle: request failed: %w", ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("oracle: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("oracle: read response: %w", err)}
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		// Other errors are not retryable
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("oracle: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// ExtractJSONObject returns the outermost {...} span of text.
// Models often wrap JSON in prose or code fences.
func ExtractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return text[start : end+1], nil
}
