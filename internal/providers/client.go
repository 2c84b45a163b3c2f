package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/stagelinehq/stageline/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultTimeout         = 30 * time.Second
)

// Config holds the connection settings shared by all provider clients.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   RetryPolicy
}

// caller is the shared HTTP transport for provider clients. It applies
// classification, bounded retry with backoff, and a circuit breaker keyed by
// provider name. Retry lives here, never in the orchestrator.
type caller struct {
	provider string
	http     *http.Client
	breakers *BreakerRegistry
	retry    RetryPolicy
}

func newCaller(provider string, cfg Config, breakers *BreakerRegistry) caller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return caller{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		breakers: breakers,
		retry:    retry,
	}
}

// postJSON sends a JSON POST and decodes the JSON response into out.
// Retryable failures are retried per the client's policy; every attempt is
// recorded against the provider's circuit breaker.
func (c *caller) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"%s: failed to marshal request body", c.provider).WithCause(err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := waitForBackoff(ctx, ComputeBackoff(c.retry, attempt-1)); err != nil {
				return classifyTransportError(c.provider, err)
			}
		}

		if err := c.breakers.AllowRequest(c.provider); err != nil {
			return err
		}

		lastErr = c.doOnce(ctx, url, headers, payload, out)
		if lastErr == nil {
			c.breakers.RecordSuccess(c.provider)
			return nil
		}

		c.breakers.RecordFailure(c.provider)

		var serr *schema.Error
		if errors.As(lastErr, &serr) && !serr.IsRetryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

func (c *caller) doOnce(ctx context.Context, url string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"%s: failed to create request", c.provider).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(c.provider, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeUpstreamUnavailable,
			"%s: failed to read response body", c.provider).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(c.provider, resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeUpstreamUnavailable,
			"%s: malformed response body", c.provider).WithCause(err)
	}
	return nil
}

// classifyTransportError maps a transport-level failure onto the failure
// taxonomy: deadline and cancellation become TIMEOUT, everything else is
// UPSTREAM_UNAVAILABLE.
func classifyTransportError(provider string, err error) *schema.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return schema.NewErrorf(schema.ErrCodeTimeout,
			"%s: request timed out", provider).WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return schema.NewErrorf(schema.ErrCodeTimeout,
			"%s: request timed out", provider).WithCause(err)
	}

	return schema.NewErrorf(schema.ErrCodeUpstreamUnavailable,
		"%s: request failed: %v", provider, err).WithCause(err)
}

// classifyStatus maps an HTTP error status onto the failure taxonomy.
// 4xx means the upstream understood and rejected the call; 5xx means it
// could not serve it. 429 is a transient rate limit, not a rejection.
func classifyStatus(provider string, status int, body []byte) *schema.Error {
	detail := truncate(string(body), 512)

	switch {
	case status == http.StatusTooManyRequests:
		return schema.NewErrorf(schema.ErrCodeUpstreamUnavailable,
			"%s: rate limited (429)", provider).
			WithDetails(map[string]any{"status": status, "body": detail})
	case status >= 500:
		return schema.NewErrorf(schema.ErrCodeUpstreamUnavailable,
			"%s: upstream error (%d)", provider, status).
			WithDetails(map[string]any{"status": status, "body": detail})
	default:
		return schema.NewErrorf(schema.ErrCodeUpstreamRejected,
			"%s: upstream rejected request (%d)", provider, status).
			WithDetails(map[string]any{"status": status, "body": detail})
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:max], len(s))
}
