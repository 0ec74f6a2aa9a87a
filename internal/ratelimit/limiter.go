// Package ratelimit provides the per-account dispatch limiters used by the scheduler.
//
// The ratelimit package abstracts over two strategies:
//   - Sliding window: a ring of the last K dispatch timestamps (default)
//   - Token bucket: golang.org/x/time/rate for accounts that tolerate bursts
//
// Limits are expressed in requests per second, matching the way the VK API
// caps every application token.
//
// Basic usage:
//
//	limiter := ratelimit.NewSlidingWindowLimiter(3) // 3 requests per second
//
//	// Block until the next dispatch is admissible, then send
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors returned by rate limiters.
var (
	// ErrRateLimitExceeded is returned when a rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

	// ErrContextCancelled is returned when the context is canceled during a blocking operation.
	ErrContextCancelled = errors.New("ratelimit: context canceled")
)

// Strategy names for configuration.
const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// DefaultRequestsPerSecond is the VK per-application cap.
const DefaultRequestsPerSecond = 3

// DefaultInterval is the window the per-second limit applies to.
const DefaultInterval = time.Second

// Usage represents the current usage and limits for a rate limiter.
type Usage struct {
	// Limit is the number of dispatches allowed per interval.
	Limit int `json:"limit"`

	// Used is the number of dispatches recorded in the current interval.
	Used int `json:"used"`

	// Remaining is the number of dispatches still admissible in the current interval.
	Remaining int `json:"remaining"`
}

// RateLimiter defines the interface for dispatch admission.
// All implementations must be safe for concurrent use.
type RateLimiter interface {
	// Wait blocks until the next dispatch is admissible and records it.
	// Returns ErrContextCancelled if the context ends first.
	Wait(ctx context.Context) error

	// Allow records a dispatch and returns true if one is admissible right now.
	// It never blocks.
	Allow(ctx context.Context) bool

	// SetLimit changes the number of dispatches allowed per interval.
	// Zero or negative values fall back to DefaultRequestsPerSecond.
	SetLimit(perSecond int)

	// GetUsage returns the current usage statistics.
	GetUsage() Usage
}

// New creates a RateLimiter for the named strategy.
// An empty strategy selects the sliding window.
func New(strategy string, perSecond, burst int) (RateLimiter, error) {
	switch strategy {
	case StrategySlidingWindow, "":
		return NewSlidingWindowLimiter(perSecond), nil
	case StrategyTokenBucket:
		return NewTokenBucketLimiter(perSecond, burst), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown strategy %q", strategy)
	}
}

func normalizeLimit(perSecond int) int {
	if perSecond <= 0 {
		return DefaultRequestsPerSecond
	}
	return perSecond
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return ErrContextCancelled
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrContextCancelled
	}
}
