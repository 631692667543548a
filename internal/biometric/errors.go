package biometric

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure code returned to callers.
type ErrorCode string

const (
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodePrivacyViolation ErrorCode = "PRIVACY_VIOLATION"
	CodeProfileNotFound  ErrorCode = "PROFILE_NOT_FOUND"
	CodeDeviceNotFound   ErrorCode = "DEVICE_NOT_FOUND"
	CodeAlertNotFound    ErrorCode = "ALERT_NOT_FOUND"
	CodeConsentInvalid   ErrorCode = "CONSENT_INVALID"
	CodeStreamClosed     ErrorCode = "STREAM_CLOSED"
	CodeInternal         ErrorCode = "INTERNAL"
)

// ServiceError is a generic orchestration failure carrying a stable code and
// optional user/device context.
type ServiceError struct {
	Code     ErrorCode
	Message  string
	UserID   string
	DeviceID string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError builds a ServiceError with the given code and message.
func NewServiceError(code ErrorCode, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// ConnectionError reports a device-adapter failure. It is retryable.
type ConnectionError struct {
	DeviceID string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s unreachable after %d attempts: %v", e.DeviceID, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed or uninterpretable reading batch.
// Not retryable; the caller must fix the input.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Errors[0])
}

// PrivacyViolationError reports a consent or aggregation rule breach. Never
// bypassed silently outside the documented emergency-override path.
type PrivacyViolationError struct {
	UserID   string
	DataType DataType
}

func (e *PrivacyViolationError) Error() string {
	return fmt.Sprintf("no consent for %s data from user %s", e.DataType, e.UserID)
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
