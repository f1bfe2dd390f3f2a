// Package vision invokes a multimodal LLM to extract structured data from
// certificate images and text.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	apperrors "github.com/complianceai/platform/infrastructure/errors"
	"github.com/complianceai/platform/infrastructure/logging"
)

// DefaultModel is used when no model override is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// MinTextLength is the minimum extracted-text length for the text path.
const MinTextLength = 50

// Result is one vision/text analysis outcome.
type Result struct {
	Data             json.RawMessage
	Model            string
	PromptVersion    string
	ProcessingTimeMs int64
}

// Client calls the Claude Messages API with per-category prompts.
type Client struct {
	client  anthropic.Client
	model   string
	limiter *rate.Limiter
	prompts *PromptLibrary
	log     *logging.Logger
}

// Config holds vision client configuration.
type Config struct {
	APIKey string
	Model  string
	// RequestsPerMinute caps the Messages API call rate; 0 disables.
	RequestsPerMinute int
}

// NewClient creates a vision client.
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		limiter: limiter,
		prompts: DefaultPromptLibrary(),
		log:     log,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// AnalyzeImage sends the document image with the category prompt.
func (c *Client) AnalyzeImage(ctx context.Context, data []byte, mimeType, category string) (*Result, error) {
	prompt, version := c.prompts.For(category)

	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(data)),
		anthropic.NewTextBlock(prompt),
	}
	return c.analyze(ctx, blocks, version)
}

// AnalyzeText sends previously extracted text with the category prompt.
// The text must exceed MinTextLength; shorter inputs are rejected up front.
func (c *Client) AnalyzeText(ctx context.Context, text, category string) (*Result, error) {
	if len(text) <= MinTextLength {
		return nil, apperrors.InvalidInput("text", fmt.Sprintf("need more than %d characters", MinTextLength))
	}
	prompt, version := c.prompts.For(category)

	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(prompt + "\n\nDocument text:\n" + text),
	}
	return c.analyze(ctx, blocks, version)
}

// AnalyzePrompt sends the category prompt alone, asking the model to
// self-identify the document. Last resort when neither image nor text is
// available; callers assign it a low confidence.
func (c *Client) AnalyzePrompt(ctx context.Context, category string) (*Result, error) {
	prompt, version := c.prompts.For(category)
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(prompt),
	}
	return c.analyze(ctx, blocks, version)
}

func (c *Client) analyze(ctx context.Context, blocks []anthropic.ContentBlockParamUnion, promptVersion string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.LLMFailed(err)
		}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, apperrors.LLMFailed(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	raw, ok := ExtractJSON(sb.String())
	if !ok {
		c.log.WithFields(map[string]interface{}{"model": c.model}).Warn("LLM response contained no JSON object")
		return nil, apperrors.LLMInvalidJSON(c.model)
	}

	return &Result{
		Data:             raw,
		Model:            c.model,
		PromptVersion:    promptVersion,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// ExtractJSON pulls the first JSON object out of a model response, handling
// fenced code blocks and surrounding prose.
func ExtractJSON(s string) (json.RawMessage, bool) {
	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), true
			}
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
