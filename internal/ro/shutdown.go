package ro

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/samber/ro"
)

// ShutdownSignals are the OS signals that interrupt a running command.
var ShutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Signals creates an Observable that emits the first of signals it receives, then completes.
// The signal handler is installed on subscribe and removed on teardown.
func Signals(signals ...os.Signal) ro.Observable[os.Signal] {
	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)

		done := make(chan struct{})
		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			case <-done:
			}
		}()

		var once sync.Once
		return func() {
			once.Do(func() {
				signal.Stop(ch)
				close(done)
			})
		}
	})
}

// CancelOnShutdown derives a context that is canceled when a shutdown signal
// arrives. onSignal, if not nil, runs before the cancellation.
// The returned stop function releases the handler and cancels the context.
func CancelOnShutdown(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sub := Signals(ShutdownSignals...).SubscribeWithContext(ctx, ro.OnNextWithContext(
		func(_ context.Context, sig os.Signal) {
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		},
	))

	return ctx, func() {
		sub.Unsubscribe()
		cancel()
	}
}
