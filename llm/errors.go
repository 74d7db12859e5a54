package llm

import (
	"errors"
)

// Error types classifying generation-service failures. Transient errors
// may succeed on an immediate transport-level retry; fatal errors abort
// the surrounding loop. Both are transport errors: the validation retry
// loop aborts on them without consuming a validation attempt.

// TransientError represents a temporary transport failure.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent transport failure (bad auth, bad
// request, unknown provider).
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error may succeed on retry.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsTransport reports whether an error originated at the
// generation-service boundary.
func IsTransport(err error) bool {
	return IsTransient(err) || IsFatal(err)
}
