package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned when an item lookup misses
	ErrItemNotFound = errors.New("item not found")
)

// ValidationError indicates malformed input rejected before any storage access
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageUnavailableError indicates a transient event-log failure.
// Callers should retry with backoff; the core does not retry internally.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// AggregationPartialFailureError indicates the event was durably recorded but
// the dedup/increment path failed. Non-fatal: the running count self-heals on
// the next full recompute.
type AggregationPartialFailureError struct {
	MakerID int64
	Err     error
}

func (e *AggregationPartialFailureError) Error() string {
	return fmt.Sprintf("aggregation partial failure for maker %d: %v", e.MakerID, e.Err)
}

func (e *AggregationPartialFailureError) Unwrap() error {
	return e.Err
}
