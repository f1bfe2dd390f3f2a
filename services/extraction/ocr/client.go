// Package ocr invokes the Azure Document Intelligence service.
//
// The data-plane API is called over REST: an analyze POST returns 202 with an
// Operation-Location header which is polled until the analysis settles.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/infrastructure/logging"
)

const (
	apiVersion   = "2024-02-29-preview"
	defaultModel = "prebuilt-read"

	// Usability gates on the amount and confidence of recognised text.
	minTextLength       = 100
	minTextLengthLowBar = 50
	minConfidenceLowBar = 0.7
)

// Result is the outcome of one OCR analysis.
type Result struct {
	Succeeded        bool            `json:"succeeded"`
	RawText          string          `json:"rawText"`
	Confidence       float64         `json:"confidence"`
	StructuredData   json.RawMessage `json:"structuredData,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Err              string          `json:"error,omitempty"`
}

// Usable reports whether the OCR output is good enough to skip escalation:
// either plenty of text, or a decent amount at high confidence.
func (r *Result) Usable() bool {
	if !r.Succeeded {
		return false
	}
	if len(r.RawText) > minTextLength {
		return true
	}
	return len(r.RawText) > minTextLengthLowBar && r.Confidence >= minConfidenceLowBar
}

// Client calls the Document Intelligence REST API.
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	log          *logging.Logger
}

// Config holds OCR client configuration.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewClient creates an OCR client.
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("document intelligence endpoint is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        model,
		pollInterval: poll,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}, nil
}

// Analyze runs OCR over the document. Failures are reported inside the
// Result so the orchestrator can fall through to the next tier.
func (c *Client) Analyze(ctx context.Context, data []byte, mimeType string) *Result {
	start := time.Now()
	result := &Result{}

	operationURL, err := c.submit(ctx, data, mimeType)
	if err != nil {
		result.Err = err.Error()
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		c.log.WithError(err).Warn("OCR submit failed")
		return result
	}

	body, err := c.poll(ctx, operationURL)
	if err != nil {
		result.Err = err.Error()
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		c.log.WithError(err).Warn("OCR poll failed")
		return result
	}

	analyzed := gjson.GetBytes(body, "analyzeResult")
	result.Succeeded = true
	result.RawText = analyzed.Get("content").String()
	result.Confidence = averageWordConfidence(analyzed)
	if structured := analyzed.Get("paragraphs"); structured.Exists() {
		result.StructuredData = json.RawMessage(structured.Raw)
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result
}

func (c *Client) submit(ctx context.Context, data []byte, mimeType string) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, c.model, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create analyze request: %w", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("analyze returned %d: %s", resp.StatusCode, string(body))
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", fmt.Errorf("analyze response missing Operation-Location")
	}
	return operationURL, nil
}

func (c *Client) poll(ctx context.Context, operationURL string) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("poll request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read poll response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("poll returned %d: %s", resp.StatusCode, string(body[:min(len(body), 512)]))
		}

		switch gjson.GetBytes(body, "status").String() {
		case "succeeded":
			return body, nil
		case "failed":
			return nil, fmt.Errorf("analysis failed: %s", gjson.GetBytes(body, "error.message").String())
		}
	}
}

// averageWordConfidence averages per-word confidences across all pages.
// Zero when the result carries no words.
func averageWordConfidence(analyzed gjson.Result) float64 {
	var sum float64
	var n int
	analyzed.Get("pages").ForEach(func(_, page gjson.Result) bool {
		page.Get("words").ForEach(func(_, word gjson.Result) bool {
			sum += word.Get("confidence").Float()
			n++
			return true
		})
		return true
	})
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
