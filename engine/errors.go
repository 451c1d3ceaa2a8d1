package engine

import (
	"errors"
	"fmt"
)

// TransientError tags an activity error as retryable. The dispatcher
// retries transient failures with backoff until the attempt budget is
// exhausted; they never reach history unless the budget runs out.
type TransientError struct {
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError tags an activity error as non-retryable. The dispatcher
// records it as an activity failure immediately, without consuming the
// remaining attempt budget.
type PermanentError struct {
	Err error
}

// Error implements error.
func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error { return e.Err }

// TimeoutError marks an activity attempt that exceeded its deadline.
// Timeouts are retried like transient errors until the budget is
// exhausted, at which point the failure is recorded.
type TimeoutError struct {
	Err error
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return "timeout: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *TimeoutError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// Transientf formats a new TransientError.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Permanentf formats a new PermanentError.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err is tagged as non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
