// Package llm abstracts the chat-completion providers the agents run on.
//
// A Client turns one prompt into one completion. Provider adapters live in
// the openai, anthropic and google subpackages; this package holds the
// shared request/response types, error classification, and the retry
// wrapper. All adapters are safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Request is one completion request.
type Request struct {
	// System is optional instruction text prepended to the prompt.
	System string

	// Prompt is the user prompt.
	Prompt string

	// MaxTokens bounds the completion length. Zero means the adapter's
	// default.
	MaxTokens int

	// Temperature controls sampling. Zero means the adapter's default.
	Temperature float64

	// JSONOutput requests a completion that is a single JSON object.
	JSONOutput bool
}

// FullPrompt joins system and user text into one prompt for providers that
// take a single message.
func (r Request) FullPrompt() string {
	if r.System == "" {
		return r.Prompt
	}
	return r.System + "\n\n" + r.Prompt
}

// Response is one completion result.
type Response struct {
	Content    string
	TokensUsed int
	Duration   time.Duration
	Provider   string
	Model      string
}

// Client is a chat-completion provider.
type Client interface {
	// Complete performs one completion. Implementations respect context
	// cancellation and return *Error for provider failures so callers can
	// check retryability.
	Complete(ctx context.Context, req Request) (Response, error)

	// Name returns the provider identifier ("openai", "anthropic",
	// "google").
	Name() string
}

// Error is a provider failure, distinguishing transient failures that can be
// retried with backoff from permanent ones.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string { return e.Message }

// IsRetryable reports whether the operation can be retried.
func (e *Error) IsRetryable() bool { return e.Retryable }

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// ClassifyError maps a raw provider error onto *Error using the message
// patterns the provider SDKs surface. Context cancellation passes through
// untouched so callers can distinguish their own aborts.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: "timeout", Message: provider + " request timed out", Retryable: true}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests"):
		return &Error{Code: "rate_limited", Message: provider + " rate limit exceeded", Retryable: true}
	case strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication"):
		return &Error{Code: "invalid_api_key", Message: provider + " API key is invalid or expired"}
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing"):
		return &Error{Code: "quota_exceeded", Message: provider + " quota exceeded"}
	case strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "overloaded"):
		return &Error{Code: "server_error", Message: provider + " server error: " + err.Error(), Retryable: true}
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "network"):
		return &Error{Code: "network_error", Message: provider + " network error: " + err.Error(), Retryable: true}
	}
	return &Error{Code: "api_error", Message: provider + " error: " + err.Error()}
}

// CleanJSON strips the markdown code fences models sometimes wrap around
// JSON output.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
