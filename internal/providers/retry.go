package providers

import (
	"context"
	"time"
)

// RetryPolicy bounds retries for transient provider failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first call.
	MaxAttempts int
	// Delay is the base delay before the first retry.
	Delay time.Duration
	// Backoff selects the growth strategy: "constant", "linear", or "exponential".
	Backoff string
	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when a client config leaves
// retry unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Backoff:     "exponential",
		MaxDelay:    5 * time.Second,
	}
}

// ComputeBackoff calculates the delay before the next retry attempt.
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	if policy.Delay <= 0 {
		return 0
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		// 2^attempt * base
		multiplier := time.Duration(1)
		for i := 0; i < attempt; i++ {
			multiplier *= 2
		}
		delay = policy.Delay * multiplier
	case "linear":
		delay = policy.Delay * time.Duration(attempt+1)
	default: // "constant" or empty
		delay = policy.Delay
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	return delay
}

// waitForBackoff sleeps for the computed backoff duration or returns early if
// the context is cancelled.
func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
