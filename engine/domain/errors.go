// Package domain holds the input validation shared by the API surfaces and
// the sentinel errors the dashboard service reports.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrInvalidDomain      = errors.New("invalid domain")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidPostID      = errors.New("invalid post id")
	ErrUnauthenticated    = errors.New("no signed-in user")
	// ErrNotConnected: the integration exists but its last verification failed.
	ErrNotConnected = errors.New("wordpress integration not connected")
	// ErrNoAudit: publishing needs a prior audit of the same post.
	ErrNoAudit = errors.New("post has not been audited")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
