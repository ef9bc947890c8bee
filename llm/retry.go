package llm

import (
	"context"
	"time"
)

// RetryConfig controls the retry wrapper.
type RetryConfig struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubled delay. Zero means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryConfig retries twice with a 1s then 2s pause.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

type retryClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps a client with exponential backoff on retryable errors.
// Permanent errors and context cancellation return immediately.
func WithRetry(inner Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &retryClient{inner: inner, cfg: cfg}
}

func (r *retryClient) Name() string { return r.inner.Name() }

func (r *retryClient) Complete(ctx context.Context, req Request) (Response, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if r.cfg.MaxBackoff > 0 && backoff > r.cfg.MaxBackoff {
				backoff = r.cfg.MaxBackoff
			}
		}

		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !Retryable(err) {
			return Response{}, err
		}
		lastErr = err
	}
	return Response{}, lastErr
}
