package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter implements RateLimiter using golang.org/x/time/rate.
//
// With burst 1 it spaces dispatches exactly 1/K apart like the sliding window.
// Larger bursts let an idle account spend several dispatches at once, which
// some API applications tolerate.
//
// Thread safety: All methods are safe for concurrent use.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	limit   int
	burst   int
	mu      sync.RWMutex // Protects limit fields and limiter updates
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
//
// Parameters:
//   - perSecond: requests per second (0 or negative = DefaultRequestsPerSecond)
//   - burst: bucket capacity (0 or negative = 1)
func NewTokenBucketLimiter(perSecond, burst int) *TokenBucketLimiter {
	perSecond = normalizeLimit(perSecond)
	if burst <= 0 {
		burst = 1
	}

	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		limit:   perSecond,
		burst:   burst,
	}
}

// Allow checks if a request is allowed right now. This is a non-blocking operation.
func (l *TokenBucketLimiter) Allow(_ context.Context) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// Wait blocks until a request is allowed or the context is canceled.
// Returns ErrContextCancelled if the context is canceled while waiting.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ErrContextCancelled
		}
		return err
	}
	return nil
}

// SetLimit updates the rate dynamically, keeping the configured burst.
func (l *TokenBucketLimiter) SetLimit(perSecond int) {
	perSecond = normalizeLimit(perSecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiter.SetLimit(rate.Limit(perSecond))
	l.limit = perSecond
}

// GetUsage approximates usage from the tokens left in the bucket.
//
// Note: golang.org/x/time/rate doesn't expose dispatch history, so Used is
// derived from the burst capacity rather than the last second.
func (l *TokenBucketLimiter) GetUsage() Usage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	remaining := clampUsage(int(l.limiter.Tokens()), l.burst)

	return Usage{
		Limit:     l.limit,
		Used:      l.burst - remaining,
		Remaining: remaining,
	}
}

func clampUsage(remaining, limit int) int {
	if remaining < 0 {
		return 0
	}
	if remaining > limit {
		return limit
	}
	return remaining
}
