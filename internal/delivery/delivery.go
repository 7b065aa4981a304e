// Package delivery defines the channel-adapter boundary. The engine does
// not know the transport; it only classifies a delivery outcome into
// success, retryable failure, or non-retryable failure.
package delivery

import (
	"context"
	"errors"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
)

// Request is the payload handed to a channel adapter, passed through from
// the scheduled message unchanged.
type Request struct {
	TicketID  string
	UserID    string
	Body      string
	Type      domain.MessageType
	MediaURL  *string
	IsPrivate bool
}

// Deliverer sends one message through a transport. A nil return means the
// message was handed off; errors are classified via RetryableError and
// PreconditionError, with any other error treated as a non-retryable
// failure.
type Deliverer interface {
	Deliver(ctx context.Context, req Request) error
}

// RetryableError wraps a transient failure (network, timeout, upstream
// overload). The worker retries these with backoff.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// Retryable wraps err as transient.
func Retryable(err error) error { return &RetryableError{Cause: err} }

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// PreconditionError wraps a collaborator-side rejection of the attempt as
// inapplicable (closed ticket, channel mismatch, internal-only payload).
// The occurrence is logged SKIPPED rather than FAILED.
type PreconditionError struct {
	Cause error
}

func (e *PreconditionError) Error() string { return e.Cause.Error() }
func (e *PreconditionError) Unwrap() error { return e.Cause }

// Precondition wraps err as a collaborator-side rejection.
func Precondition(err error) error { return &PreconditionError{Cause: err} }

// IsPrecondition reports whether err is a collaborator-side rejection.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
