package ratelimit

import "time"

// NewSlidingWindowWithClock exports the clock-injected constructor for testing.
var NewSlidingWindowWithClock = newSlidingWindow

// Verify NewSlidingWindowWithClock has the expected type at compile time.
var _ func(int, time.Duration, func() time.Time) *SlidingWindowLimiter = NewSlidingWindowWithClock

// GetRing returns a copy of the ring ordered oldest first (for testing).
func (l *SlidingWindowLimiter) GetRing() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]time.Time, 0, len(l.ring))
	for i := 0; i < len(l.ring); i++ {
		out = append(out, l.ring[(l.head+i)%len(l.ring)])
	}
	return out
}

// GetLimit returns the configured rate (for testing).
func (l *TokenBucketLimiter) GetLimit() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limit
}

// GetBurst returns the configured burst (for testing).
func (l *TokenBucketLimiter) GetBurst() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.burst
}
