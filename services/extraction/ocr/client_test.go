package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complianceai/platform/infrastructure/logging"
)

func TestResultUsable(t *testing.T) {
	long := strings.Repeat("x", 101)
	short := strings.Repeat("x", 60)

	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{"failed call", Result{Succeeded: false, RawText: long, Confidence: 0.99}, false},
		{"plenty of text", Result{Succeeded: true, RawText: long, Confidence: 0.1}, true},
		{"some text high confidence", Result{Succeeded: true, RawText: short, Confidence: 0.7}, true},
		{"some text low confidence", Result{Succeeded: true, RawText: short, Confidence: 0.6}, false},
		{"empty text", Result{Succeeded: true, RawText: "", Confidence: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Usable())
		})
	}
}

func TestAnalyzeSubmitAndPoll(t *testing.T) {
	var mux http.ServeMux
	server := httptest.NewServer(&mux)
	defer server.Close()

	mux.HandleFunc("/documentintelligence/documentModels/prebuilt-read:analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Operation-Location", server.URL+"/operations/op-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "succeeded",
			"analyzeResult": {
				"content": "LANDLORD GAS SAFETY RECORD ...",
				"pages": [{"words": [{"confidence": 0.9}, {"confidence": 0.7}]}],
				"paragraphs": [{"content": "LANDLORD GAS SAFETY RECORD"}]
			}
		}`))
	})

	client, err := NewClient(Config{
		Endpoint:     server.URL,
		APIKey:       "key-1",
		PollInterval: time.Millisecond,
	}, logging.New("test", "error", "text"))
	require.NoError(t, err)

	result := client.Analyze(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	assert.True(t, result.Succeeded)
	assert.Contains(t, result.RawText, "GAS SAFETY")
	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	assert.NotEmpty(t, result.StructuredData)
	assert.Empty(t, result.Err)
}

func TestAnalyzeReportsFailureInsideResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, PollInterval: time.Millisecond},
		logging.New("test", "error", "text"))
	require.NoError(t, err)

	result := client.Analyze(context.Background(), []byte("%PDF"), "application/pdf")
	assert.False(t, result.Succeeded)
	assert.NotEmpty(t, result.Err)
	assert.False(t, result.Usable())
}

func TestAnalyzePollFailureStatus(t *testing.T) {
	var mux http.ServeMux
	server := httptest.NewServer(&mux)
	defer server.Close()

	mux.HandleFunc("/documentintelligence/documentModels/prebuilt-read:analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Operation-Location", server.URL+"/operations/op-2")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/op-2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","error":{"message":"unreadable document"}}`))
	})

	client, err := NewClient(Config{Endpoint: server.URL, PollInterval: time.Millisecond},
		logging.New("test", "error", "text"))
	require.NoError(t, err)

	result := client.Analyze(context.Background(), []byte("%PDF"), "application/pdf")
	assert.False(t, result.Succeeded)
	assert.Contains(t, result.Err, "unreadable document")
}
