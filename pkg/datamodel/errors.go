package datamodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupt indicates a record file exists but could not be parsed.
	ErrCorrupt = errors.New("record corrupt")

	// ErrInvalidRecord indicates a record failed validation before write.
	ErrInvalidRecord = errors.New("invalid record")
)

// StoreError wraps store errors with the operation and record path.
type StoreError struct {
	// Op is the operation that failed (e.g., "GetTask", "SaveJob").
	Op string

	// Path is the record path, if applicable.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupt returns true if the error indicates an unreadable record file.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
