// Package blob provides object-storage access for certificate documents.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	apperrors "github.com/complianceai/platform/infrastructure/errors"
)

// Store abstracts get/put over blob storage.
type Store interface {
	// Fetch returns the object bytes for key. Returns a StoreNotFound
	// ServiceError when the key does not exist and StoreUnavailable for
	// transient transport failures.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Put uploads an object.
	Put(ctx context.Context, key string, data []byte, mimeType string) error
}

// HTTPStore talks to a Supabase-Storage-compatible object API.
type HTTPStore struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

// HTTPConfig holds object storage configuration.
type HTTPConfig struct {
	BaseURL    string
	Bucket     string
	ServiceKey string
	Timeout    time.Duration
}

// NewHTTPStore creates an object storage client.
func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("storage base URL is required")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "certificates"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		bucket:     bucket,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch downloads an object.
func (s *HTTPStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, sanitizeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.StoreNotFound(key)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.StoreUnavailable(fmt.Errorf("storage API %d: %s", resp.StatusCode, string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	return data, nil
}

// Put uploads an object.
func (s *HTTPStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, sanitizeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.StoreUnavailable(fmt.Errorf("storage API %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.serviceKey != "" {
		req.Header.Set("apikey", s.serviceKey)
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	}
}

func sanitizeKey(key string) string {
	cleaned := path.Clean("/" + key)
	return strings.TrimPrefix(cleaned, "/")
}
