package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/K-Arthur/script-generator/provider"
)

// Operation names carried by Error.
const (
	OpGenerate = "generate"
	OpImprove  = "improve"
)

// Error is a failed generate or improve call after every provider in the
// chain was tried. Err holds the last backend error.
type Error struct {
	Op       string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("generation: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("generation: %s failed (last provider %s): %v", e.Op, e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

// FatalError represents an error that retrying the same provider cannot fix.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }

func (e *FatalError) Unwrap() error { return e.err }

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classify wraps a provider error as transient or fatal. Rate limits,
// server errors and transport failures are transient; other API statuses
// (bad request, auth) are fatal.
func classify(err error) error {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return &TransientError{err: err}
		}
		return &FatalError{err: err}
	}
	return &TransientError{err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
