// Package openai adapts OpenAI chat completions to the llm.Client interface.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/roadmapper-ai/roadmapper/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Client wraps the official OpenAI SDK. Safe for concurrent use.
type Client struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI-backed client.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: &client, model: model}, nil
}

// Name implements llm.Client.
func (c *Client) Name() string { return "openai" }

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(req.FullPrompt()),
					},
				},
			},
		},
	}
	if req.JSONOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, llm.ClassifyError(c.Name(), err)
	}
	if len(completion.Choices) == 0 {
		return llm.Response{}, &llm.Error{Code: "empty_response", Message: "no response from OpenAI API"}
	}

	return llm.Response{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Duration:   time.Since(start),
		Provider:   c.Name(),
		Model:      c.model,
	}, nil
}

var _ llm.Client = (*Client)(nil)
