// Package google adapts the Gemini API to the llm.Client interface.
package google

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/roadmapper-ai/roadmapper/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-pro"

// Client wraps the official Gemini SDK. Safe for concurrent use.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed client. Callers must Close it when done.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, llm.ClassifyError("google", err)
	}
	return &Client{client: client, model: model}, nil
}

// Name implements llm.Client.
func (c *Client) Name() string { return "google" }

// Close releases the underlying gRPC connection.
func (c *Client) Close() error { return c.client.Close() }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	start := time.Now()

	model := c.client.GenerativeModel(c.model)
	if req.JSONOutput {
		model.ResponseMIMEType = "application/json"
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.FullPrompt()))
	if err != nil {
		return llm.Response{}, llm.ClassifyError(c.Name(), err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Response{}, &llm.Error{Code: "empty_response", Message: "no response from Gemini API"}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return llm.Response{}, &llm.Error{Code: "empty_response", Message: "no text content from Gemini API"}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return llm.Response{
		Content:    sb.String(),
		TokensUsed: tokens,
		Duration:   time.Since(start),
		Provider:   c.Name(),
		Model:      c.model,
	}, nil
}

var _ llm.Client = (*Client)(nil)
