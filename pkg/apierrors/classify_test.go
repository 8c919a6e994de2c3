package apierrors

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		status  int
		want    Class
	}{
		{"throttling code", "Throttling", "Rate exceeded", 400, ClassThrottling},
		{"throttling exception", "ThrottlingException", "Rate exceeded", 400, ClassThrottling},
		{"too many requests status", "", "", 429, ClassThrottling},
		{"transient code", "ServiceUnavailable", "try again", 503, ClassTransient},
		{"internal failure", "InternalFailure", "", 500, ClassTransient},
		{"bare 500", "", "", 500, ClassTransient},
		{"bare 502", "", "", 502, ClassTransient},
		{"not found suffix", "Stack.NotFound", "", 400, ClassNotFound},
		{"no such entity", "NoSuchEntity", "role missing", 404, ClassNotFound},
		{"cfn missing stack", "ValidationError", "Stack with id web does not exist", 400, ClassNotFound},
		{"already exists", "EntityAlreadyExists", "", 409, ClassConflict},
		{"cfn no-op update", "ValidationError", "No updates are to be performed.", 400, ClassConflict},
		{"access denied", "AccessDenied", "not authorized", 403, ClassFatal},
		{"signature mismatch", "SignatureDoesNotMatch", "", 403, ClassFatal},
		{"plain validation error", "ValidationError", "invalid template", 400, ClassFatal},
		{"unknown 4xx", "SomethingInvalid", "", 400, ClassFatal},
		{"namespaced code", "com.amazonaws.sqs#QueueDoesNotExist", "", 400, ClassNotFound},
		{"namespaced throttle", "com.amazonaws.sqs#ThrottlingException", "", 400, ClassThrottling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.code, tt.message, tt.status)
			if got != tt.want {
				t.Errorf("Classify(%q, %q, %d) = %s, want %s",
					tt.code, tt.message, tt.status, got, tt.want)
			}
		})
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	if !New("Throttling", "Rate exceeded", 400).Retryable() {
		t.Error("throttling error should be retryable")
	}
	if !New("InternalError", "", 500).Retryable() {
		t.Error("transient error should be retryable")
	}
	if New("AccessDenied", "", 403).Retryable() {
		t.Error("fatal error should not be retryable")
	}
	if New("EntityAlreadyExists", "", 409).Retryable() {
		t.Error("conflict error should not be retryable")
	}
}

func TestAPIErrorIs(t *testing.T) {
	err := New("QueueDoesNotExist", "no queue", 400)

	if !errors.Is(err, &APIError{Class: ClassNotFound, Code: "QueueDoesNotExist"}) {
		t.Error("expected match on class and code")
	}
	if !errors.Is(err, &APIError{Class: ClassNotFound}) {
		t.Error("expected class-only wildcard match")
	}
	if errors.Is(err, &APIError{Class: ClassConflict}) {
		t.Error("unexpected match on different class")
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	var err error = &TransportError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("TransportError should unwrap to the network error")
	}

	err = &PaginationError{Page: 3, Err: New("InternalError", "", 500)}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("PaginationError should unwrap to the APIError")
	}
	if apiErr.Class != ClassTransient {
		t.Errorf("unexpected class %s", apiErr.Class)
	}
}
