package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// ClientConfig configures the HTTP client for the remote job service.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "https://optimize.example.com".
	BaseURL string

	// APIKey is sent as a bearer token. Empty means unauthenticated; the
	// service will reject such requests.
	APIKey string

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration

	// RateLimit is the maximum requests per second to the service.
	// Zero means unlimited.
	RateLimit float64

	// HTTPClient overrides the underlying client. Timeout is ignored when
	// set. Used by tests.
	HTTPClient *http.Client
}

// HTTPClient implements Client against the remote job service's JSON API.
//
// Endpoints:
//
//	POST /v1/{job_type}/jobs             start a job
//	GET  /v1/{job_type}/jobs/{id}        current status
//	GET  /v1/{job_type}/jobs/{id}/result output of a completed job
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the remote job service.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// GetStatus implements Client.
func (c *HTTPClient) GetStatus(ctx context.Context, jobType datamodel.JobType, remoteJobID string) (*RemoteStatus, error) {
	url := fmt.Sprintf("%s/v1/%s/jobs/%s", c.baseURL, jobType, remoteJobID)
	status, err := doJSON[RemoteStatus](ctx, c, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ClientError{Op: "GetStatus", JobType: jobType, RemoteJobID: remoteJobID, StatusCode: statusCodeOf(err), Err: err}
	}
	return status, nil
}

// GetResult implements Client.
func (c *HTTPClient) GetResult(ctx context.Context, jobType datamodel.JobType, remoteJobID string) (*RemoteResult, error) {
	url := fmt.Sprintf("%s/v1/%s/jobs/%s/result", c.baseURL, jobType, remoteJobID)
	result, err := doJSON[RemoteResult](ctx, c, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ClientError{Op: "GetResult", JobType: jobType, RemoteJobID: remoteJobID, StatusCode: statusCodeOf(err), Err: err}
	}
	return result, nil
}

// Submit implements Client.
func (c *HTTPClient) Submit(ctx context.Context, jobType datamodel.JobType, req *SubmitRequest) (string, error) {
	url := fmt.Sprintf("%s/v1/%s/jobs", c.baseURL, jobType)
	status, err := doJSON[RemoteStatus](ctx, c, http.MethodPost, url, req)
	if err != nil {
		return "", &ClientError{Op: "Submit", JobType: jobType, StatusCode: statusCodeOf(err), Err: err}
	}
	if strings.TrimSpace(status.JobID) == "" {
		return "", &ClientError{Op: "Submit", JobType: jobType, Err: fmt.Errorf("%w: missing job_id", ErrInvalidResponse)}
	}
	return status.JobID, nil
}

// httpStatusError carries the response status through the sentinel mapping.
type httpStatusError struct {
	code int
	err  error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func statusCodeOf(err error) int {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// doJSON performs one request against the service and decodes a JSON body
// into T. Response codes map onto the package sentinels.
func doJSON[T any](ctx context.Context, c *HTTPClient, method, url string, body any) (*T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpStatusError{code: resp.StatusCode, err: mapStatusCode(resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrServiceUnavailable, err)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}

func mapStatusCode(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrJobNotFound
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return ErrValidation
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrInvalidResponse, code)
	}
}
