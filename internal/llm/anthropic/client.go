// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"Lumin-Agent/internal/llm"
)

const (
	defaultModel     = anthropic.ModelClaudeHaiku4_5_20251001
	defaultMaxTokens = 1024
	providerName     = "anthropic"
)

// Config contains what is needed to talk to the Messages API.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Client calls Claude models through the official SDK.
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates a client. SDK-level retries are disabled; retrying is the
// job of llm.RetryClient so that the policy stays in one place.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Anthropic API Key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := anthropic.Model(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Model returns the configured default model.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Complete sends a single user turn and concatenates the text blocks of the reply.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	model := c.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = anthropic.Model(m)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		retryable := true
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			retryable = llm.RetryableStatus(apiErr.StatusCode)
		}
		return "", llm.UpstreamError(providerName, err, retryable)
	}

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}
	text := strings.TrimSpace(result.String())
	if text == "" {
		return "", llm.UpstreamError(providerName, errors.New("Anthropic 响应中没有文本内容"), false)
	}
	return text, nil
}

var _ llm.Client = (*Client)(nil)
