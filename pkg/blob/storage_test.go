package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/complianceai/platform/infrastructure/errors"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "certs/doc.pdf", []byte("%PDF-1.7"), "application/pdf"))

	data, err := store.Fetch(ctx, "certs/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Fetch(context.Background(), "missing")
	require.Error(t, err)
	svcErr := apperrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, apperrors.ErrCodeStoreNotFound, svcErr.Code)
}

func TestHTTPStoreFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/v1/object/certificates/docs/found.pdf":
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("pdf-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store, err := NewHTTPStore(HTTPConfig{BaseURL: server.URL, ServiceKey: "secret"})
	require.NoError(t, err)

	data, err := store.Fetch(context.Background(), "docs/found.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	_, err = store.Fetch(context.Background(), "docs/missing.pdf")
	require.Error(t, err)
	svcErr := apperrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, apperrors.ErrCodeStoreNotFound, svcErr.Code)
}

func TestHTTPStoreTransientFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store, err := NewHTTPStore(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "a/b.pdf", sanitizeKey("a/b.pdf"))
	assert.Equal(t, "b.pdf", sanitizeKey("../b.pdf"))
	assert.Equal(t, "a/b.pdf", sanitizeKey("/a/./b.pdf"))
}
