package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// retryableStatus lists the HTTP statuses the retry policy reattempts.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Error is a failed transport call. Timeout marks an aborted request;
// otherwise Status carries the HTTP status code (0 for network failures
// below HTTP). Code/Details come from the server's structured error body
// when one was parseable.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Timeout bool

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Timeout {
		return "could not reach server"
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the retry policy may reattempt this failure.
func (e *Error) Retryable() bool {
	return e.Timeout || retryableStatus[e.Status]
}

// IsRetryable reports whether err is a transport failure eligible for retry.
func IsRetryable(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Retryable()
}

// DecodeError is a malformed response: bad envelope, missing required
// field, or an unparseable timestamp. It is fatal to the operation and
// never retried.
type DecodeError struct {
	Field string
	cause error
}

// NewDecodeError builds a DecodeError for the named field or context.
func NewDecodeError(field string, cause error) *DecodeError {
	return &DecodeError{Field: field, cause: cause}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }
