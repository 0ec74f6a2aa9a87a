package fetcher

import "sync/atomic"

// roundRobin cycles through items in order.
// Uses an atomic counter so concurrent dispatches never take a lock.
type roundRobin[T any] struct {
	items []T
	next  atomic.Uint64
}

func newRoundRobin[T any](items []T) *roundRobin[T] {
	return &roundRobin[T]{items: items}
}

// pick returns the item for the next dispatch and its index.
// Dispatch i goes to item i mod len(items), whatever order earlier calls complete in.
func (r *roundRobin[T]) pick() (int, T) {
	n := r.next.Add(1) - 1
	//nolint:gosec // Safe: modulo keeps the result below len(items)
	idx := int(n % uint64(len(r.items)))
	return idx, r.items[idx]
}
