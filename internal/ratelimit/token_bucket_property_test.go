package ratelimit

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property-based tests specific to TokenBucketLimiter implementation

func TestTokenBucketLimiter_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property 1: Constructor always returns a usable limiter
	properties.Property("constructor normalizes limits", prop.ForAll(
		func(perSecond, burst int) bool {
			limiter := NewTokenBucketLimiter(perSecond, burst)
			return limiter != nil && limiter.limit > 0 && limiter.burst > 0
		},
		gen.IntRange(-100, 1000),
		gen.IntRange(-100, 1000),
	))

	// Property 2: A fresh bucket admits exactly burst requests at once
	properties.Property("fresh bucket admits burst requests", prop.ForAll(
		func(burst int) bool {
			// Rate 1/s keeps refill negligible while the loop runs
			limiter := NewTokenBucketLimiter(1, burst)
			ctx := context.Background()

			allowed := 0
			for i := 0; i < burst+5; i++ {
				if limiter.Allow(ctx) {
					allowed++
				}
			}
			return allowed == burst
		},
		gen.IntRange(1, 50),
	))

	// Property 3: Usage never exceeds the configured burst
	properties.Property("usage bounded by burst", prop.ForAll(
		func(burst, requests int) bool {
			limiter := NewTokenBucketLimiter(1, burst)
			ctx := context.Background()
			for i := 0; i < requests; i++ {
				limiter.Allow(ctx)
			}

			usage := limiter.GetUsage()
			return usage.Remaining >= 0 &&
				usage.Remaining <= burst &&
				usage.Used+usage.Remaining == burst
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 40),
	))

	// Property 4: SetLimit is reflected in usage
	properties.Property("SetLimit reflected in usage", prop.ForAll(
		func(perSecond int) bool {
			limiter := NewTokenBucketLimiter(3, 1)
			limiter.SetLimit(perSecond)
			return limiter.GetUsage().Limit == perSecond
		},
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}
