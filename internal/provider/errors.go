package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/finsentry/finsentry/internal/llm"
)

// TransientError marks a provider failure worth retrying: timeouts,
// connection resets, rate limits, server-side errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a provider failure that retrying cannot fix:
// malformed input, rejected requests, exhausted quota.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// classifyErr sorts a raw backend error into the taxonomy. API rejections
// follow the backend's retryability; network timeouts and cancellations
// are transient; anything unrecognized is treated as transient so a flaky
// backend gets its bounded retries before the item is dropped.
func classifyErr(op string, err error) error {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return Transient(op, err)
		}
		return Permanent(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return Permanent(op, err)
	}

	return Transient(op, err)
}
