package llm

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"rate limit", errors.New("429 Too Many Requests"), "rate_limited", true},
		{"rate limit text", errors.New("rate limit exceeded, retry later"), "rate_limited", true},
		{"bad key", errors.New("401 Unauthorized"), "invalid_api_key", false},
		{"auth text", errors.New("authentication failed"), "invalid_api_key", false},
		{"quota", errors.New("you have exceeded your quota"), "quota_exceeded", false},
		{"server 503", errors.New("503 Service Unavailable"), "server_error", true},
		{"overloaded", errors.New("overloaded_error: try again"), "server_error", true},
		{"network", errors.New("connection refused"), "network_error", true},
		{"unknown", errors.New("something odd happened"), "api_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError("openai", tt.err)
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if pe.Code != tt.code {
				t.Errorf("code = %q, want %q", pe.Code, tt.code)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", pe.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifyErrorContextPassthrough(t *testing.T) {
	if err := ClassifyError("openai", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled should pass through, got %v", err)
	}
	err := ClassifyError("openai", context.DeadlineExceeded)
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != "timeout" || !pe.Retryable {
		t.Errorf("deadline should map to retryable timeout, got %v", err)
	}
	if ClassifyError("openai", nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestRetryableHelper(t *testing.T) {
	if Retryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
	if !Retryable(&Error{Code: "rate_limited", Retryable: true}) {
		t.Error("retryable Error should report true")
	}
}

func TestFullPrompt(t *testing.T) {
	r := Request{Prompt: "design a roadmap"}
	if got := r.FullPrompt(); got != "design a roadmap" {
		t.Errorf("FullPrompt = %q", got)
	}
	r.System = "You are a curriculum designer."
	want := "You are a curriculum designer.\n\ndesign a roadmap"
	if got := r.FullPrompt(); got != want {
		t.Errorf("FullPrompt = %q, want %q", got, want)
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := CleanJSON(tt.in); got != tt.want {
			t.Errorf("CleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
