package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := StoreUnavailable(cause)

	assert.Equal(t, ErrCodeStoreUnavailable, err.Code)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "STORE_4001")

	wrapped := fmt.Errorf("loading bytes: %w", err)
	extracted := GetServiceError(wrapped)
	require.NotNil(t, extracted)
	assert.Equal(t, ErrCodeStoreUnavailable, extracted.Code)
}

func TestTransientClassification(t *testing.T) {
	transient := []error{
		StoreUnavailable(errors.New("x")),
		Timeout("fetch"),
		CircuitOpen("ocr"),
		OCRFailed(errors.New("x")),
		LLMFailed(errors.New("x")),
		DatabaseError("insert", errors.New("x")),
		WebhookDeliveryFailed("https://example.test", 503, errors.New("x")),
	}
	for _, err := range transient {
		assert.True(t, IsTransient(err), err.Error())
	}

	terminal := []error{
		StoreNotFound("key"),
		LLMInvalidJSON("model"),
		ValidationFailed("tier-3", "missing type"),
		MissingInput("job-1"),
		InvalidInput("field", "reason"),
		errors.New("plain error"),
	}
	for _, err := range terminal {
		assert.False(t, IsTransient(err), err.Error())
	}
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(NotFound("certificates", "c-1")))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(MissingParameter("propertyId")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("anything")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x", "1")))
	assert.True(t, IsNotFound(StoreNotFound("key")))
	assert.False(t, IsNotFound(Timeout("op")))
	assert.False(t, IsNotFound(errors.New("nope")))
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCodeInternal, "boom", http.StatusInternalServerError).
		WithDetails("a", 1).
		WithDetails("b", "two")
	assert.Equal(t, 1, err.Details["a"])
	assert.Equal(t, "two", err.Details["b"])
}
