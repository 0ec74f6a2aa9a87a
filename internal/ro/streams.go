// Package ro provides the reactive stream helpers vk-async builds on samber/ro.
//
// IMPORTANT: samber/ro is pre-1.0. Keep usage behind these helpers so an
// upgrade touches one package.
//
// Use this package for fan-in of asynchronous results (batch calls) and for
// signal handling. Bounded, synchronous transformations belong to samber/lo.
package ro

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/ro"
)

// FromSlice creates an Observable that emits items in order, then completes.
func FromSlice[T any](items []T) ro.Observable[T] {
	return ro.FromSlice(items)
}

// MapStream transforms items from a source Observable using a mapper function.
// Items keep their source order.
func MapStream[T, R any](source ro.Observable[T], mapper func(T) R) ro.Observable[R] {
	return ro.Pipe1(source, ro.Map(mapper))
}

// LogEach logs every item at debug level without modifying the stream.
// describe turns an item into log fields.
func LogEach[T any](
	source ro.Observable[T], logger *zerolog.Logger, describe func(*zerolog.Event, T) *zerolog.Event,
) ro.Observable[T] {
	return ro.Pipe1(source, ro.DoOnNext(func(item T) {
		if e := logger.Debug(); e.Enabled() {
			describe(e, item).Msg("stream item")
		}
	}))
}

// CollectWithContext collects all items from a stream, stopping when ctx ends.
func CollectWithContext[T any](ctx context.Context, source ro.Observable[T]) ([]T, error) {
	items, _, err := ro.CollectWithContext(ctx, source)
	return items, err
}
