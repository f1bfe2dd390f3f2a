package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerClient(t *testing.T) {
	r := NewRegistry(Config{RequestsPerSecond: 1, Burst: 2, MaxIdle: time.Minute})

	assert.True(t, r.Allow("client-a"))
	assert.True(t, r.Allow("client-a"))
	assert.False(t, r.Allow("client-a"), "burst exhausted")

	// Other clients have their own bucket.
	assert.True(t, r.Allow("client-b"))
	assert.Equal(t, 2, r.Size())
}

func TestCleanupDropsIdleClients(t *testing.T) {
	r := NewRegistry(Config{RequestsPerSecond: 10, Burst: 10, MaxIdle: 10 * time.Millisecond})

	r.Allow("stale")
	time.Sleep(20 * time.Millisecond)
	r.Allow("fresh")

	removed := r.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Size())
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	r := NewRegistry(Config{RequestsPerSecond: 1, Burst: 1, MaxIdle: time.Minute})
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
