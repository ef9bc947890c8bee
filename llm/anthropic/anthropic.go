// Package anthropic adapts the Anthropic Messages API to the llm.Client
// interface.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/roadmapper-ai/roadmapper/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

// Client wraps the official Anthropic SDK. Safe for concurrent use.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates an Anthropic-backed client.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client, model: model}, nil
}

// Name implements llm.Client.
func (c *Client) Name() string { return "anthropic" }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	start := time.Now()

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	prompt := req.FullPrompt()
	if req.JSONOutput {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, llm.ClassifyError(c.Name(), err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return llm.Response{}, &llm.Error{Code: "empty_response", Message: "no text content from Anthropic API"}
	}

	return llm.Response{
		Content:    sb.String(),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
		Duration:   time.Since(start),
		Provider:   c.Name(),
		Model:      c.model,
	}, nil
}

var _ llm.Client = (*Client)(nil)
