// Package service holds the use cases behind the HTTP API: submitting
// expenses, administering flows, deciding approvals and reporting.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any state is touched
	ErrValidation = errors.New("validation failed")

	// ErrForbidden marks an action the acting user may not perform
	ErrForbidden = errors.New("forbidden")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
