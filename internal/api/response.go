package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
	"github.com/septivank/biometric-pipeline/internal/store"
)

// APIResponse is the common envelope for every JSON endpoint.
type APIResponse struct {
	Data  interface{}    `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *APIError      `json:"error,omitempty"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondSuccess(c *gin.Context, status int, data interface{}, meta map[string]any) {
	c.JSON(status, APIResponse{Data: data, Meta: meta})
}

func respondError(c *gin.Context, logger *zap.Logger, status int, msg string, err error) {
	requestID := c.GetString("request_id")
	logger.Error(msg,
		zap.Error(err),
		zap.String("request_id", requestID),
		zap.String("path", c.FullPath()),
	)
	full := msg
	if err != nil {
		full = msg + ": " + err.Error()
	}
	c.JSON(status, APIResponse{Error: &APIError{Code: status, Message: full}})
}

// handleServiceError maps domain errors onto HTTP status codes.
func handleServiceError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	var svcErr *biometric.ServiceError
	switch {
	case errors.As(err, &svcErr):
		respondError(c, logger, statusForCode(svcErr.Code), msg, err)
	case errors.Is(err, store.ErrNotFound):
		respondError(c, logger, http.StatusNotFound, msg, err)
	default:
		respondError(c, logger, http.StatusInternalServerError, msg, err)
	}
}

func statusForCode(code biometric.ErrorCode) int {
	switch code {
	case biometric.CodeProfileNotFound, biometric.CodeDeviceNotFound, biometric.CodeAlertNotFound:
		return http.StatusNotFound
	case biometric.CodeValidationFailed, biometric.CodeConsentInvalid:
		return http.StatusBadRequest
	case biometric.CodePrivacyViolation:
		return http.StatusForbidden
	case biometric.CodeConnectionFailed:
		return http.StatusBadGateway
	case biometric.CodeStreamClosed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
