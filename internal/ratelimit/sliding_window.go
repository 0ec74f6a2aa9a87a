package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most K dispatches per interval using a ring of
// the last K dispatch timestamps.
//
// The next dispatch is admissible at the later of:
//   - oldest + interval (no more than K dispatches in any window)
//   - newest + interval/K (consecutive dispatches are spaced at least 1/K apart)
//
// Wait reserves the slot before sleeping, so concurrent callers queue behind
// each other in reservation order.
//
// Thread safety: All methods are safe for concurrent use.
type SlidingWindowLimiter struct {
	now      func() time.Time
	ring     []time.Time
	interval time.Duration
	head     int // index of the oldest timestamp
	mu       sync.Mutex
}

// NewSlidingWindowLimiter creates a limiter allowing perSecond dispatches per second.
// Zero or negative values fall back to DefaultRequestsPerSecond.
func NewSlidingWindowLimiter(perSecond int) *SlidingWindowLimiter {
	return newSlidingWindow(perSecond, DefaultInterval, time.Now)
}

func newSlidingWindow(perSecond int, interval time.Duration, now func() time.Time) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		ring:     make([]time.Time, normalizeLimit(perSecond)),
		interval: interval,
		now:      now,
	}
}

// Wait blocks until the next dispatch is admissible.
// The slot stays consumed even if the context ends while waiting.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	return sleepContext(ctx, l.reserve(true))
}

// Allow records a dispatch only if it is admissible without waiting.
func (l *SlidingWindowLimiter) Allow(_ context.Context) bool {
	return l.reserve(false) == 0
}

// Delay returns how long a dispatch would have to wait right now, without recording it.
func (l *SlidingWindowLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.admissibleAt(now).Sub(now)
}

// reserve records the next admissible dispatch time and returns the wait until it.
// When force is false and a wait would be needed, nothing is recorded and the
// (positive) delay is returned.
func (l *SlidingWindowLimiter) reserve(force bool) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	at := l.admissibleAt(now)
	delay := at.Sub(now)
	if delay > 0 && !force {
		return delay
	}

	// Pop the oldest slot and push the reserved time as the newest.
	l.ring[l.head] = at
	l.head = (l.head + 1) % len(l.ring)

	if delay < 0 {
		return 0
	}
	return delay
}

// admissibleAt must be called with mu held.
func (l *SlidingWindowLimiter) admissibleAt(now time.Time) time.Time {
	size := len(l.ring)
	oldest := l.ring[l.head]
	newest := l.ring[(l.head+size-1)%size]

	at := now
	if t := oldest.Add(l.interval); t.After(at) {
		at = t
	}
	if t := newest.Add(l.interval / time.Duration(size)); t.After(at) {
		at = t
	}
	return at
}

// SetLimit resizes the ring, keeping the most recent timestamps.
func (l *SlidingWindowLimiter) SetLimit(perSecond int) {
	size := normalizeLimit(perSecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	if size == len(l.ring) {
		return
	}

	// Unroll oldest -> newest, then keep the tail that fits.
	ordered := make([]time.Time, 0, len(l.ring))
	for i := 0; i < len(l.ring); i++ {
		ordered = append(ordered, l.ring[(l.head+i)%len(l.ring)])
	}

	ring := make([]time.Time, size)
	if len(ordered) > size {
		ordered = ordered[len(ordered)-size:]
	}
	copy(ring[size-len(ordered):], ordered)

	l.ring = ring
	l.head = 0
}

// GetUsage counts the dispatches recorded within the last interval.
func (l *SlidingWindowLimiter) GetUsage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.interval)
	used := 0
	for _, ts := range l.ring {
		if ts.After(cutoff) {
			used++
		}
	}

	return Usage{
		Limit:     len(l.ring),
		Used:      used,
		Remaining: len(l.ring) - used,
	}
}
