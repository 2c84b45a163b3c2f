package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// LLMClient talks to an OpenAI-compatible chat-completions endpoint.
type LLMClient struct {
	caller
	baseURL string
	apiKey  string
	model   string
}

// LLMOption configures the LLMClient.
type LLMOption func(*LLMClient)

// WithModel sets the default model.
func WithModel(model string) LLMOption {
	return func(c *LLMClient) { c.model = model }
}

// NewLLMClient creates a chat-completions client.
func NewLLMClient(cfg Config, breakers *BreakerRegistry, opts ...LLMOption) *LLMClient {
	c := &LLMClient{
		caller:  newCaller("llm", cfg, breakers),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   "gpt-4o-mini",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a system+user prompt pair and returns the raw completion text.
func (c *LLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, nil)
}

// CompleteJSON sends a system+user prompt pair in JSON response mode and
// decodes the completion into a map. Markdown code fences around the JSON
// body are stripped before decoding, since some models wrap output despite
// the response format hint.
func (c *LLMClient) CompleteJSON(ctx context.Context, system, user string) (map[string]any, error) {
	text, err := c.complete(ctx, system, user, &respFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}

	cleaned := stripCodeFence(text)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
			"llm: completion is not valid JSON").
			WithCause(err).
			WithDetails(map[string]any{"completion": truncate(text, 512)})
	}
	return out, nil
}

func (c *LLMClient) complete(ctx context.Context, system, user string, format *respFormat) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.7,
		ResponseFormat: format,
	}

	var resp chatResponse
	err := c.postJSON(ctx, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, req, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeUpstreamRejected, "llm: completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence, if present, and
// falls back to the outermost {...} span when extra prose surrounds the JSON.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start >= 0 && end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return trimmed
}
