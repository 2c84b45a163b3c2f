package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaller(t *testing.T, serverURL string, retry RetryPolicy) caller {
	t.Helper()
	return newCaller("test", Config{
		BaseURL: serverURL,
		Timeout: 2 * time.Second,
		Retry:   retry,
	}, NewBreakerRegistry(DefaultBreakerConfig()))
}

func noRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func TestCaller_SuccessDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, noRetry())

	var out map[string]any
	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, &out)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestCaller_ClientErrorIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, noRetry())

	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, nil)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamRejected, serr.Code)
	assert.False(t, serr.IsRetryable())
}

func TestCaller_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, noRetry())

	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, nil)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamUnavailable, serr.Code)
	assert.True(t, serr.IsRetryable())
}

func TestCaller_RateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, noRetry())

	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, nil)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamUnavailable, serr.Code)
	assert.True(t, serr.IsRetryable())
}

func TestCaller_DeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, noRetry())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.postJSON(ctx, srv.URL, nil, map[string]any{}, nil)
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeTimeout, serr.Code)
}

func TestCaller_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Backoff:     "constant",
	})

	var out map[string]any
	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCaller_DoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := testCaller(t, srv.URL, RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Backoff:     "constant",
	})

	err := c.postJSON(context.Background(), srv.URL, nil, map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{400, schema.ErrCodeUpstreamRejected},
		{401, schema.ErrCodeUpstreamRejected},
		{404, schema.ErrCodeUpstreamRejected},
		{429, schema.ErrCodeUpstreamUnavailable},
		{500, schema.ErrCodeUpstreamUnavailable},
		{503, schema.ErrCodeUpstreamUnavailable},
	}

	for _, tt := range tests {
		err := classifyStatus("test", tt.status, nil)
		assert.Equal(t, tt.code, err.Code, "status %d", tt.status)
	}
}

func TestComputeBackoff(t *testing.T) {
	exp := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: "exponential", MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(exp, 0))
	assert.Equal(t, 200*time.Millisecond, ComputeBackoff(exp, 1))
	assert.Equal(t, 400*time.Millisecond, ComputeBackoff(exp, 2))
	assert.Equal(t, time.Second, ComputeBackoff(exp, 10), "capped at max delay")

	lin := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: "linear"}
	assert.Equal(t, 300*time.Millisecond, ComputeBackoff(lin, 2))

	con := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: "constant"}
	assert.Equal(t, 100*time.Millisecond, ComputeBackoff(con, 5))
}
