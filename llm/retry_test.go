package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := NewScripted(
		ScriptEntry{Err: &Error{Code: "rate_limited", Retryable: true}},
		ScriptEntry{Err: &Error{Code: "server_error", Retryable: true}},
		ScriptEntry{Content: `{"ok":true}`},
	)
	client := WithRetry(inner, fastRetry(3))

	resp, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.Calls() != 3 {
		t.Errorf("calls = %d, want 3", inner.Calls())
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	inner := NewScripted(
		ScriptEntry{Err: &Error{Code: "invalid_api_key"}},
		ScriptEntry{Content: "never reached"},
	)
	client := WithRetry(inner, fastRetry(3))

	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != "invalid_api_key" {
		t.Fatalf("err = %v, want invalid_api_key", err)
	}
	if inner.Calls() != 1 {
		t.Errorf("calls = %d, want 1", inner.Calls())
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	inner := NewScripted(ScriptEntry{Err: &Error{Code: "rate_limited", Retryable: true}})
	client := WithRetry(inner, fastRetry(3))

	_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != "rate_limited" {
		t.Fatalf("err = %v, want rate_limited", err)
	}
	if inner.Calls() != 3 {
		t.Errorf("calls = %d, want 3", inner.Calls())
	}
}

func TestRetryRespectsCancellation(t *testing.T) {
	inner := NewScripted(ScriptEntry{Err: &Error{Code: "rate_limited", Retryable: true}})
	client := WithRetry(inner, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, Request{Prompt: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if inner.Calls() != 1 {
		t.Errorf("calls = %d, want 1", inner.Calls())
	}
}
