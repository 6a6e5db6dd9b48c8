package optimizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/forgelabs/promptforge/internal/assets/schemas"
)

// RequestSchemaID is the schema identifier for job submission requests.
const RequestSchemaID = "promptforge/v1.0.0/start-job-request"

// Cached validator instance (compiled once from the embedded schema)
var (
	requestValidatorOnce sync.Once
	requestValidator     *schema.Validator
	requestValidatorErr  error
)

// RequestValidationError is a single schema violation in a submission
// request.
type RequestValidationError struct {
	// Path is the JSON pointer to the problematic field (e.g., "/eval_ids/0").
	Path string

	// Message describes the violation.
	Message string
}

// Error implements error interface.
func (e RequestValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// RequestValidationErrors is a collection of schema violations.
type RequestValidationErrors []RequestValidationError

// Error implements error interface.
func (e RequestValidationErrors) Error() string {
	if len(e) == 0 {
		return "request validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("request validation failed with %d errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error type.
func (e RequestValidationErrors) Unwrap() error {
	return ErrInvalidRequest
}

// ErrorDetails reports the violations as structured error-envelope details.
func (e RequestValidationErrors) ErrorDetails() map[string]interface{} {
	violations := make([]map[string]string, 0, len(e))
	for _, v := range e {
		violations = append(violations, map[string]string{
			"path":    v.Path,
			"message": v.Message,
		})
	}
	return map[string]interface{}{"violations": violations}
}

// ValidateStartRequest checks a raw submission body against the embedded
// request schema, including rejection of unknown fields.
//
// Returns nil on success, or a RequestValidationErrors with every
// violation.
func ValidateStartRequest(jsonData []byte) error {
	v, err := getRequestValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(diags) == 0 {
		return nil
	}

	var errs RequestValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, RequestValidationError{
				Path:    d.Pointer,
				Message: d.Message,
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// getRequestValidator compiles the embedded schema once and caches it.
func getRequestValidator() (*schema.Validator, error) {
	requestValidatorOnce.Do(func() {
		if len(schemasassets.StartJobRequestSchema) == 0 {
			requestValidatorErr = fmt.Errorf("embedded start-job-request schema is empty")
			return
		}
		requestValidator, requestValidatorErr = schema.NewValidator(schemasassets.StartJobRequestSchema)
		if requestValidatorErr != nil {
			requestValidatorErr = fmt.Errorf("failed to compile request schema: %w", requestValidatorErr)
		}
	})
	return requestValidator, requestValidatorErr
}
