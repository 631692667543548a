package biometric_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

func TestIsRetryable(t *testing.T) {
	connErr := &biometric.ConnectionError{DeviceID: "d1", Attempts: 3, Err: errors.New("timeout")}
	if !biometric.IsRetryable(connErr) {
		t.Error("Expected connection errors to be retryable")
	}
	if !biometric.IsRetryable(fmt.Errorf("collect failed: %w", connErr)) {
		t.Error("Expected wrapped connection errors to be retryable")
	}

	if biometric.IsRetryable(&biometric.ValidationError{Errors: []string{"bad batch"}}) {
		t.Error("Expected validation errors not to be retryable")
	}
	if biometric.IsRetryable(biometric.NewServiceError(biometric.CodeInternal, "boom")) {
		t.Error("Expected service errors not to be retryable")
	}
	if biometric.IsRetryable(nil) {
		t.Error("Expected nil not to be retryable")
	}
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &biometric.ServiceError{Code: biometric.CodeConnectionFailed, Message: "vendor call failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Expected the wrapped cause to surface through errors.Is")
	}
}
