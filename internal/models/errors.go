package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested event or certificate does not exist.
	ErrNotFound = errors.New("not found")
	// ErrArtifactMissing means the record exists but its stored file does not.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrUnavailable means the record store is not connected yet.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict means another operation holds the resource (e.g. a running batch).
	ErrConflict = errors.New("conflict")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
