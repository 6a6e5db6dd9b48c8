package optimizer

import (
	"errors"
	"fmt"

	"github.com/forgelabs/promptforge/pkg/datamodel"
)

// Sentinel errors for optimizer operations.
var (
	// ErrNotConfigured indicates no API key is configured for the remote
	// service.
	ErrNotConfigured = errors.New("remote optimization service not configured")

	// ErrToolsUnsupported indicates the target run config declares tools,
	// which the optimization backends cannot execute.
	ErrToolsUnsupported = errors.New("run configs with tools cannot be optimized")

	// ErrUnauthorized indicates the remote service rejected the API key.
	ErrUnauthorized = errors.New("remote service rejected credentials")

	// ErrJobNotFound indicates the remote service does not know the job.
	ErrJobNotFound = errors.New("remote job not found")

	// ErrValidation indicates the remote service rejected the request payload.
	ErrValidation = errors.New("remote service rejected request")

	// ErrInvalidResponse indicates the remote service answered with a body
	// this client cannot interpret.
	ErrInvalidResponse = errors.New("invalid remote response")

	// ErrServiceUnavailable indicates the remote service could not be reached
	// or answered with a server error.
	ErrServiceUnavailable = errors.New("remote service unavailable")

	// ErrNoResult indicates the job has not produced an optimized prompt yet.
	ErrNoResult = errors.New("job has no result yet")

	// ErrInvalidRequest indicates a submission request that fails local
	// validation before reaching the remote service.
	ErrInvalidRequest = errors.New("invalid submission request")
)

// ClientError wraps remote call failures with context.
type ClientError struct {
	// Op is the call that failed (e.g., "GetStatus", "Submit").
	Op string

	// JobType is the backend the call addressed.
	JobType datamodel.JobType

	// RemoteJobID is the remote job identifier, if applicable.
	RemoteJobID string

	// StatusCode is the HTTP status, if a response was received.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.RemoteJobID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.JobType, e.RemoteJobID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.JobType, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsUnauthorized returns true if the error indicates rejected credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation returns true if the error indicates a rejected payload.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotConfigured returns true if the error indicates a missing API key.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
