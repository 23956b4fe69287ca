// Package gemini adapts the Google GenAI SDK to llm.Client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"Lumin-Agent/internal/llm"
)

const (
	defaultModel = "gemini-2.5-flash"
	providerName = "gemini"
)

// Config contains what is needed to call the Gemini API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client generates text with Gemini models.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini API backed client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Complete generates a single response for the prompt.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	model := c.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = m
	}

	genCfg := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		retryable := true
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			retryable = llm.RetryableStatus(apiErr.Code)
		}
		return "", llm.UpstreamError(providerName, fmt.Errorf("GenAI generate failed: %w", err), retryable)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", llm.UpstreamError(providerName, errors.New("GenAI returned no text"), false)
	}
	return text, nil
}

var _ llm.Client = (*Client)(nil)
