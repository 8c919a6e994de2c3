// Package apierrors defines the typed error taxonomy shared by the transport,
// pagination, and waiter layers, and the classification table that maps
// provider error codes to a retryable/fatal taxonomy.
package apierrors

import (
	"errors"
	"fmt"
	"time"
)

// Class represents the classification of a provider error for retry and
// recovery logic.
type Class string

const (
	// ClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: internal service errors, dropped connections, 5xx responses.
	ClassTransient Class = "transient"

	// ClassThrottling indicates a provider-signaled rate-limit rejection.
	// Should be retried with a longer backoff than plain transient failures.
	ClassThrottling Class = "throttling"

	// ClassNotFound indicates the addressed resource does not exist.
	ClassNotFound Class = "not_found"

	// ClassConflict indicates the requested change is already in effect.
	// Examples: "already exists", "no updates are to be performed".
	// Callers may choose to treat these as success.
	ClassConflict Class = "conflict"

	// ClassFatal indicates a configuration or permission error that must
	// not be retried.
	ClassFatal Class = "fatal"
)

// ErrCredentialsUnavailable is returned when no credential source yields
// usable keys.
var ErrCredentialsUnavailable = errors.New("no credential source yielded usable keys")

// APIError is a decoded, structured provider failure. It carries the
// provider-defined error code, the human-readable message, the HTTP status
// of the response it was decoded from, and the classification assigned by
// the classifier table.
type APIError struct {
	// Class is the error classification for retry logic.
	Class Class

	// Code is the provider-defined error code string.
	Code string

	// Message is the human-readable error message from the provider.
	Message string

	// HTTPStatus is the HTTP status code of the response.
	HTTPStatus int

	// RequestID identifies the failed request on the provider side,
	// when the response carried one.
	RequestID string
}

// New builds an APIError and assigns its class from the classification table.
func New(code, message string, httpStatus int) *APIError {
	return &APIError{
		Class:      Classify(code, message, httpStatus),
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("[%s] %s (status=%d, request_id=%s): %s",
			e.Class, e.Code, e.HTTPStatus, e.RequestID, e.Message)
	}
	return fmt.Sprintf("[%s] %s (status=%d): %s", e.Class, e.Code, e.HTTPStatus, e.Message)
}

// Is implements error equality for errors.Is. Two APIErrors match when
// their class and code match; an empty code on the target acts as a
// class-only wildcard.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Class == t.Class
	}
	return e.Class == t.Class && e.Code == t.Code
}

// Retryable reports whether the dispatcher may retry the request that
// produced this error.
func (e *APIError) Retryable() bool {
	return e.Class == ClassTransient || e.Class == ClassThrottling
}

// SigningError indicates the request description could not be turned into a
// signed request.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signing failed: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.Err }

// TransportError indicates a network-level failure where no response was
// received. Transport errors are always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError indicates a response body did not match the expected protocol
// shape. Decode errors are never retried.
type DecodeError struct {
	Protocol string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s response failed: %v", e.Protocol, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WaiterTimeoutError indicates a waiter's deadline elapsed before a terminal
// state was observed.
type WaiterTimeoutError struct {
	LastState string
	Waited    time.Duration
}

func (e *WaiterTimeoutError) Error() string {
	if e.LastState == "" {
		return fmt.Sprintf("waiter timed out after %s with no status observed", e.Waited)
	}
	return fmt.Sprintf("waiter timed out after %s in state %q", e.Waited, e.LastState)
}

// WaiterFailureError indicates a waiter observed a configured failure state.
type WaiterFailureError struct {
	State string
}

func (e *WaiterFailureError) Error() string {
	return fmt.Sprintf("waiter reached failure state %q", e.State)
}

// PaginationError wraps a failure from an underlying listing call, recording
// which page was being fetched when it occurred.
type PaginationError struct {
	Page int
	Err  error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination failed on page %d: %v", e.Page, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }
