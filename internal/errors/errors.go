// Package errors maps domain errors onto the HTTP error envelope. Every
// non-2xx response carries the same JSON shape:
//
//	{"error": {"code": ..., "message": ..., "request_id": ..., "details": ...}}
//
// Import as apperrors to avoid shadowing the standard library.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	"github.com/forgelabs/promptforge/pkg/datamodel"
	"github.com/forgelabs/promptforge/pkg/dataset"
	"github.com/forgelabs/promptforge/pkg/optimizer"
)

// ErrorDetail is the inner error object of the envelope.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPErrorResponse is the error envelope for all non-2xx responses.
type HTTPErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Error codes used across the HTTP surface.
const (
	CodeNotConfigured      = "NOT_CONFIGURED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Classify maps a domain error to its HTTP status and envelope code.
//
// Mapping, in match order:
//   - missing API key           -> 401 NOT_CONFIGURED
//   - rejected credentials      -> 401 UNAUTHORIZED
//   - missing records/jobs      -> 404 NOT_FOUND
//   - tool-bearing run configs  -> 400 VALIDATION_FAILED
//   - schema-invalid payloads   -> 400 VALIDATION_FAILED
//   - bad dataset filter ids    -> 400 VALIDATION_FAILED
//   - result not available yet  -> 400 VALIDATION_FAILED
//   - upstream payload rejected -> 422 VALIDATION_FAILED
//   - upstream unreachable/bad  -> 502 SERVICE_UNAVAILABLE
//   - everything else           -> 500 INTERNAL_ERROR
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, optimizer.ErrNotConfigured):
		return http.StatusUnauthorized, CodeNotConfigured
	case errors.Is(err, optimizer.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, datamodel.ErrNotFound), errors.Is(err, optimizer.ErrJobNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, optimizer.ErrToolsUnsupported),
		errors.Is(err, optimizer.ErrInvalidRequest),
		errors.Is(err, dataset.ErrUnknownFilter),
		errors.Is(err, dataset.ErrInvalidTagPattern),
		errors.Is(err, optimizer.ErrNoResult):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, optimizer.ErrValidation):
		return http.StatusUnprocessableEntity, CodeValidationFailed
	case errors.Is(err, optimizer.ErrServiceUnavailable), errors.Is(err, optimizer.ErrInvalidResponse):
		return http.StatusBadGateway, CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// Detailer lets a domain error attach structured details to the envelope.
// Validation errors use it to report individual violations.
type Detailer interface {
	ErrorDetails() map[string]interface{}
}

// RespondWithError classifies err and writes the error envelope. The request
// ID set by the request-id middleware is carried into the envelope, and any
// Detailer in the error chain contributes the details object.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)

	message := "internal server error"
	if err != nil && status != http.StatusInternalServerError {
		// Internal errors keep their detail out of responses; everything
		// else is actionable for the caller.
		message = err.Error()
	}

	envelope := gferrors.NewErrorEnvelope(code, message)
	if requestID := requestIDFor(w, r); requestID != "" {
		envelope = envelope.WithCorrelationID(requestID)
	}
	var detailer Detailer
	if errors.As(err, &detailer) {
		if enriched, ctxErr := envelope.WithContext(detailer.ErrorDetails()); ctxErr == nil {
			envelope = enriched
		}
	}

	WriteEnvelope(w, envelope, status)
}

// WriteCode writes an envelope with an explicit status and code, for
// responses that do not originate from a domain error (unknown routes,
// rejected methods, failed admin auth).
func WriteCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	envelope := gferrors.NewErrorEnvelope(code, message)
	if requestID := requestIDFor(w, r); requestID != "" {
		envelope = envelope.WithCorrelationID(requestID)
	}
	WriteEnvelope(w, envelope, status)
}

// WriteEnvelope renders a gofulmen error envelope as the HTTP error response.
func WriteEnvelope(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, status int) {
	resp := HTTPErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			RequestID: envelope.CorrelationID,
			Details:   envelope.Context,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// requestIDFor finds the request ID: the one the middleware stamped on the
// response, or the inbound header when responding before the stamp.
func requestIDFor(w http.ResponseWriter, r *http.Request) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	if r != nil {
		return r.Header.Get("X-Request-ID")
	}
	return ""
}
