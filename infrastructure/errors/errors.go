// Package errors provides unified error handling for the ingestion pipeline
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Validation errors (1xxx)
	ErrCodeInvalidInput     ErrorCode = "VAL_1001"
	ErrCodeMissingParameter ErrorCode = "VAL_1002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_1003"

	// Resource errors (2xxx)
	ErrCodeNotFound      ErrorCode = "RES_2001"
	ErrCodeAlreadyExists ErrorCode = "RES_2002"
	ErrCodeConflict      ErrorCode = "RES_2003"

	// Service errors (3xxx)
	ErrCodeInternal      ErrorCode = "SVC_3001"
	ErrCodeDatabaseError ErrorCode = "SVC_3002"
	ErrCodeTimeout       ErrorCode = "SVC_3003"
	ErrCodeCircuitOpen   ErrorCode = "SVC_3004"

	// Document store errors (4xxx)
	ErrCodeStoreUnavailable ErrorCode = "STORE_4001"
	ErrCodeStoreNotFound    ErrorCode = "STORE_4002"
	ErrCodeMissingInput     ErrorCode = "STORE_4003"

	// Extraction errors (5xxx)
	ErrCodeOCRFailed        ErrorCode = "EXT_5001"
	ErrCodeLLMFailed        ErrorCode = "EXT_5002"
	ErrCodeLLMInvalidJSON   ErrorCode = "EXT_5003"
	ErrCodeValidationFailed ErrorCode = "EXT_5004"
	ErrCodeConfigLoadFailed ErrorCode = "EXT_5005"

	// Webhook errors (6xxx)
	ErrCodeWebhookDelivery ErrorCode = "HOOK_6001"
	ErrCodeWebhookDisabled ErrorCode = "HOOK_6002"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Transient  bool                   `json:"-"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation Errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "Missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

// Resource Errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "Resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Service Errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	e := Wrap(ErrCodeDatabaseError, "Database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
	e.Transient = true
	return e
}

func Timeout(operation string) *ServiceError {
	e := New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
	e.Transient = true
	return e
}

func CircuitOpen(dependency string) *ServiceError {
	e := New(ErrCodeCircuitOpen, "Circuit breaker is open", http.StatusServiceUnavailable).
		WithDetails("dependency", dependency)
	e.Transient = true
	return e
}

// Document store errors

func StoreUnavailable(err error) *ServiceError {
	e := Wrap(ErrCodeStoreUnavailable, "Document store unavailable", http.StatusBadGateway, err)
	e.Transient = true
	return e
}

func StoreNotFound(key string) *ServiceError {
	return New(ErrCodeStoreNotFound, "Document not found in store", http.StatusNotFound).
		WithDetails("key", key)
}

func MissingInput(jobID string) *ServiceError {
	return New(ErrCodeMissingInput, "No document bytes available from any source", http.StatusUnprocessableEntity).
		WithDetails("job_id", jobID)
}

// Extraction errors

func OCRFailed(err error) *ServiceError {
	e := Wrap(ErrCodeOCRFailed, "OCR analysis failed", http.StatusBadGateway, err)
	e.Transient = true
	return e
}

func LLMFailed(err error) *ServiceError {
	e := Wrap(ErrCodeLLMFailed, "LLM analysis failed", http.StatusBadGateway, err)
	e.Transient = true
	return e
}

func LLMInvalidJSON(model string) *ServiceError {
	return New(ErrCodeLLMInvalidJSON, "LLM response did not contain a JSON object", http.StatusUnprocessableEntity).
		WithDetails("model", model)
}

func ValidationFailed(tier, reason string) *ServiceError {
	return New(ErrCodeValidationFailed, "Extracted output failed schema validation", http.StatusUnprocessableEntity).
		WithDetails("tier", tier).
		WithDetails("reason", reason)
}

func ConfigLoadFailed(err error) *ServiceError {
	return Wrap(ErrCodeConfigLoadFailed, "Classification code configuration unavailable", http.StatusInternalServerError, err)
}

// Webhook errors

func WebhookDeliveryFailed(endpoint string, status int, err error) *ServiceError {
	e := Wrap(ErrCodeWebhookDelivery, "Webhook delivery failed", http.StatusBadGateway, err).
		WithDetails("endpoint", endpoint).
		WithDetails("status", status)
	e.Transient = true
	return e
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsTransient reports whether the error should be retried by the job queue.
// Unknown errors are treated as programmer errors and not retried.
func IsTransient(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Transient
	}
	return false
}

// IsNotFound reports whether the error is a not-found of any kind.
func IsNotFound(err error) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code == ErrCodeNotFound || serviceErr.Code == ErrCodeStoreNotFound
	}
	return false
}
