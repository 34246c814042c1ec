package connectors

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultProactiveRate keeps well under typical provider quotas.
	defaultProactiveRate = 2.0

	// defaultMinBuffer reserves headroom before waiting for the reset.
	defaultMinBuffer = 50

	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
)

// RateLimiter combines proactive token-bucket throttling with reactive
// backoff driven by provider rate-limit headers.
type RateLimiter struct {
	mu        sync.Mutex
	remaining int
	limit     int
	resetTime time.Time
	bucket    *rate.Limiter
	minBuffer int
}

// NewRateLimiter creates a limiter at requestsPerSecond. Non-positive
// rates fall back to the default.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultProactiveRate
	}
	return &RateLimiter{
		remaining: int(^uint(0) >> 1),
		bucket:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		minBuffer: defaultMinBuffer,
	}
}

// Wait blocks until a request may proceed: first the token bucket, then
// a reactive sleep when the provider quota is nearly exhausted.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining < r.minBuffer && time.Now().Before(resetTime) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(resetTime)):
		}
	}
	return nil
}

// Observe updates quota state from a provider response's headers.
func (r *RateLimiter) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := resp.Header.Get(headerRateRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.remaining = n
		}
	}
	if v := resp.Header.Get(headerRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.limit = n
		}
	}
	if v := resp.Header.Get(headerRateReset); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.resetTime = time.Unix(unix, 0)
		}
	}
	if v := resp.Header.Get(headerRetryAfter); v != "" && (resp.StatusCode == 429 || resp.StatusCode == 403) {
		if seconds, err := strconv.Atoi(v); err == nil {
			r.resetTime = time.Now().Add(time.Duration(seconds) * time.Second)
			r.remaining = 0
		}
	}
}

// Remaining returns the provider-reported remaining quota.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}
