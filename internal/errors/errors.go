// Package errors provides the consolidated error definitions for batcha.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - A collector for configuration validation errors
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Session errors
	ErrFileNotFoundForReadonly = errors.New("read-only open requested on a file that does not exist")
	ErrSessionClosed           = errors.New("session is closed")
	ErrReadOnly                = errors.New("container is open read-only")

	// Schema errors
	ErrSchemaConflict       = errors.New("column requested with conflicting formats")
	ErrInconsistentRowCount = errors.New("inconsistent number of rows to write")
	ErrKindMismatch         = errors.New("node kind mismatch")
	ErrNotGroup             = errors.New("intermediate node is not a group")

	// Buffer errors
	ErrEmptyBuffer = errors.New("no pending rows in buffer")

	// Not found / already exists
	ErrNotFound       = errors.New("not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotEmpty       = errors.New("not empty")

	// Validation errors
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidFormat = errors.New("invalid format")
	ErrValueType     = errors.New("value does not match column format")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrCodec    = errors.New("codec error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrFileNotFoundForReadonly)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrValueType) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrAlreadyExists)
}

// NewInvalidPath creates an invalid path error with context.
func NewInvalidPath(path, reason string) error {
	return fmt.Errorf("path '%s': %s: %w", path, reason, ErrInvalidPath)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
