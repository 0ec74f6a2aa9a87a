// Package future provides Continuation, a chainable asynchronous result used to
// compose the stages of an API call (scheduling, transport, classification).
//
// A Continuation is resolved exactly once with either a value or an error.
// Continuations derived with Map keep a non-owning reference to the upstream
// continuation they depend on, so awaiting a derived continuation surfaces the
// upstream failure before the derived transform is ever considered.
//
// Basic usage:
//
//	base := future.Lift(10)
//	doubled := future.Map(base, func(v int) (int, error) { return v * 2, nil })
//
//	v, err := doubled.Await(ctx) // 20, nil
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/mo"
)

// ErrAlreadyResolved is the panic value raised when a continuation is resolved twice.
var ErrAlreadyResolved = errors.New("future: continuation already resolved")

// Executor runs the transforms attached to a continuation.
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Go implements Executor.
func (f ExecutorFunc) Go(fn func()) { f(fn) }

var (
	// Inline runs transforms on the goroutine that resolved the upstream continuation.
	Inline Executor = ExecutorFunc(func(fn func()) { fn() })

	// Goroutine runs every transform on a fresh goroutine.
	Goroutine Executor = ExecutorFunc(func(fn func()) { go fn() })
)

// upstream is the view a derived continuation keeps of its parent.
type upstream interface {
	awaitErr(ctx context.Context) error
}

// Continuation holds the eventual result of an asynchronous operation.
// All methods are safe for concurrent use.
type Continuation[T any] struct {
	parent    upstream
	exec      Executor
	done      chan struct{}
	callbacks []func()
	result    mo.Result[T]
	mu        sync.Mutex
	resolved  bool
}

// Resolver completes a pending continuation. Calling Resolve or Reject more than
// once panics with ErrAlreadyResolved.
type Resolver[T any] struct {
	c *Continuation[T]
}

// Resolve completes the continuation with a value.
func (r Resolver[T]) Resolve(value T) {
	r.c.complete(mo.Ok(value))
}

// Reject completes the continuation with an error.
func (r Resolver[T]) Reject(err error) {
	if err == nil {
		err = errors.New("future: rejected with nil error")
	}
	r.c.complete(mo.Err[T](err))
}

// New creates a pending continuation whose derived transforms run on exec.
// A nil exec runs transforms inline.
func New[T any](exec Executor) (*Continuation[T], Resolver[T]) {
	c := &Continuation[T]{
		exec: exec,
		done: make(chan struct{}),
	}
	return c, Resolver[T]{c: c}
}

// Lift creates an already-resolved continuation with no executor.
func Lift[T any](value T) *Continuation[T] {
	c, r := New[T](nil)
	r.Resolve(value)
	return c
}

// Failed creates an already-failed continuation with no executor.
func Failed[T any](err error) *Continuation[T] {
	c, r := New[T](nil)
	r.Reject(err)
	return c
}

// Run executes fn on exec and returns a continuation for its result.
// Panics inside fn are captured as errors.
func Run[T any](exec Executor, fn func() (T, error)) *Continuation[T] {
	c, r := New[T](exec)
	dispatch(exec, func() {
		settle(r, fn)
	})
	return c
}

// Map returns a continuation that resolves to fn applied to the value of src.
// The result shares the executor of src and records src as its parent.
// If src fails, the result fails with the same error and fn is never invoked.
func Map[T, R any](src *Continuation[T], fn func(T) (R, error)) *Continuation[R] {
	dst, r := New[R](src.exec)
	dst.parent = src

	src.onResolve(func() {
		dispatch(dst.exec, func() {
			value, err := src.result.Get()
			if err != nil {
				r.Reject(err)
				return
			}
			settle(r, func() (R, error) { return fn(value) })
		})
	})

	return dst
}

// Await blocks until the continuation and its parent chain are resolved.
// A failure anywhere upstream is returned before the continuation's own result.
// If ctx ends first, ctx.Err() is returned and the continuation is left untouched.
func (c *Continuation[T]) Await(ctx context.Context) (T, error) {
	var zero T

	if c.parent != nil {
		if err := c.parent.awaitErr(ctx); err != nil {
			return zero, err
		}
	}

	select {
	case <-c.done:
		return c.result.Get()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the continuation is resolved.
func (c *Continuation[T]) Done() <-chan struct{} {
	return c.done
}

// Result returns the resolved result without blocking.
// The second return value is false while the continuation is still pending.
func (c *Continuation[T]) Result() (mo.Result[T], bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return mo.Result[T]{}, false
	}
}

// IsResolved reports whether the continuation holds a value or an error.
func (c *Continuation[T]) IsResolved() bool {
	_, ok := c.Result()
	return ok
}

func (c *Continuation[T]) awaitErr(ctx context.Context) error {
	_, err := c.Await(ctx)
	return err
}

func (c *Continuation[T]) complete(result mo.Result[T]) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		panic(ErrAlreadyResolved)
	}
	c.resolved = true
	c.result = result
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// onResolve registers cb to run once the continuation is resolved.
// If it already is, cb runs immediately on the calling goroutine.
func (c *Continuation[T]) onResolve(cb func()) {
	c.mu.Lock()
	if !c.resolved {
		c.callbacks = append(c.callbacks, cb)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cb()
}

func dispatch(exec Executor, fn func()) {
	if exec == nil {
		fn()
		return
	}
	exec.Go(fn)
}

// settle runs fn and resolves r with its outcome, converting panics to errors.
func settle[T any](r Resolver[T], fn func() (T, error)) {
	defer func() {
		if p := recover(); p != nil {
			r.Reject(fmt.Errorf("future: transform panicked: %v", p))
		}
	}()

	value, err := fn()
	if err != nil {
		r.Reject(err)
		return
	}
	r.Resolve(value)
}
