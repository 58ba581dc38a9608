package meli

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// retryableStatuses are the HTTP statuses worth another attempt: throttling
// and transient server-side failures.
var retryableStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// RetryPolicy decides whether and how long to wait between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, first try included
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; later waits double
	BackoffBase time.Duration
	// MaxBackoff caps any single wait
	MaxBackoff time.Duration
}

// NewRetryPolicy builds a policy from the client configuration
func NewRetryPolicy(cfg *Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		MaxBackoff:  60 * time.Second,
	}
}

// Retryable reports whether the HTTP status justifies another attempt
func (p RetryPolicy) Retryable(status int) bool {
	_, ok := retryableStatuses[status]
	return ok
}

// Backoff returns the wait before the given retry (attempt is 1-based: the
// wait after attempt N). A Retry-After header value from the server takes
// precedence over the computed backoff.
func (p RetryPolicy) Backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	wait := p.BackoffBase
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	// Up to 10% jitter keeps a worker pool from retrying in lockstep
	wait += time.Duration(rand.Int63n(int64(wait)/10 + 1))
	if wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}

// sleep waits for the given duration or until the context is cancelled
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
