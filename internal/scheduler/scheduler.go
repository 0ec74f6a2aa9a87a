// Package scheduler serializes the API calls of one account behind its rate limiter.
//
// A Scheduler owns a FIFO queue drained by exactly one worker goroutine. Before
// each item runs, the worker waits on the account's ratelimit.RateLimiter, so at
// most one call per account is ever inside the wait/send critical section while
// different accounts proceed in parallel.
//
// Basic usage:
//
//	s := scheduler.New(ratelimit.NewSlidingWindowLimiter(3), scheduler.Options{Name: "main"})
//	defer s.Close(ctx)
//
//	c := scheduler.Submit(s, func(ctx context.Context) (int, error) {
//		return 42, nil
//	})
//	v, err := c.Await(ctx)
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omarluq/vk-async/internal/future"
	"github.com/omarluq/vk-async/internal/ratelimit"
)

// ErrSchedulerClosed is returned for work submitted after Close, and for queued
// work discarded by DisposeCancel.
var ErrSchedulerClosed = errors.New("scheduler: closed")

// DisposePolicy decides what happens to queued work when a scheduler is closed.
type DisposePolicy string

const (
	// DisposeDrain runs every queued item, then stops the worker.
	DisposeDrain DisposePolicy = "drain"

	// DisposeCancel fails every queued item with ErrSchedulerClosed and cancels
	// the context of the item currently running.
	DisposeCancel DisposePolicy = "cancel"
)

// ParseDisposePolicy maps a configuration value to a DisposePolicy.
// An empty value selects DisposeDrain.
func ParseDisposePolicy(s string) (DisposePolicy, error) {
	switch DisposePolicy(s) {
	case "", DisposeDrain:
		return DisposeDrain, nil
	case DisposeCancel:
		return DisposeCancel, nil
	default:
		return "", fmt.Errorf("scheduler: unknown dispose policy %q", s)
	}
}

// Options configures a Scheduler.
type Options struct {
	// Logger receives dispatch events. Nil disables logging.
	Logger *zerolog.Logger

	// Executor runs transforms mapped onto the continuations returned by Submit.
	// Nil runs them inline.
	Executor future.Executor

	// Policy is applied by Close. Empty means DisposeDrain.
	Policy DisposePolicy

	// Name identifies the account in log events.
	Name string
}

// task is a queued unit of work bound to its continuation.
type task struct {
	run  func(ctx context.Context)
	fail func(err error)
}

// Scheduler is a rate-limited serial executor for one account.
// All methods are safe for concurrent use.
type Scheduler struct {
	limiter ratelimit.RateLimiter
	exec    future.Executor
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	cond    *sync.Cond
	logger  zerolog.Logger
	name    string
	policy  DisposePolicy
	queue   []task
	mu      sync.Mutex
	closed  bool
}

// New creates a Scheduler and starts its worker.
func New(limiter ratelimit.RateLimiter, opts Options) *Scheduler {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("account", opts.Name).Logger()
	}

	policy := opts.Policy
	if policy == "" {
		policy = DisposeDrain
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		limiter: limiter,
		exec:    opts.Executor,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		logger:  logger,
		name:    opts.Name,
		policy:  policy,
	}
	s.cond = sync.NewCond(&s.mu)

	go s.work()

	return s
}

// Submit queues work on s and returns a continuation for its result.
//
// The context passed to work is canceled when the scheduler is closed with
// DisposeCancel or when Close gives up waiting. Errors and panics from work
// are captured into the continuation; the worker keeps running.
func Submit[T any](s *Scheduler, work func(ctx context.Context) (T, error)) *future.Continuation[T] {
	c, r := future.New[T](s.exec)

	t := task{
		run: func(ctx context.Context) {
			value, err := runCaptured(ctx, work)
			if err != nil {
				r.Reject(err)
				return
			}
			r.Resolve(value)
		},
		fail: r.Reject,
	}

	if !s.enqueue(t) {
		r.Reject(ErrSchedulerClosed)
	}

	return c
}

// Name returns the account name the scheduler serves.
func (s *Scheduler) Name() string {
	return s.name
}

// Limiter returns the rate limiter gating dispatches.
func (s *Scheduler) Limiter() ratelimit.RateLimiter {
	return s.limiter
}

// Pending returns the number of queued items not yet dispatched.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting work and disposes queued items according to the policy.
//
// Close waits for the worker goroutine to exit. If ctx ends first, the worker
// context is canceled so that remaining items fail promptly, and ctx.Err() is
// returned. Calling Close more than once is safe.
func (s *Scheduler) Close(ctx context.Context) error {
	var discarded []task

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.policy == DisposeCancel {
			discarded = s.queue
			s.queue = nil
		}
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	if s.policy == DisposeCancel {
		s.cancel()
	}

	for _, t := range discarded {
		t.fail(ErrSchedulerClosed)
	}

	if len(discarded) > 0 {
		s.logger.Debug().Int("discarded", len(discarded)).Msg("scheduler closed, queued calls canceled")
	}

	select {
	case <-s.stopped:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Done returns a channel closed once the worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

func (s *Scheduler) enqueue(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.queue = append(s.queue, t)
	s.cond.Signal()
	return true
}

// next blocks until an item is queued or the scheduler is closed and empty.
func (s *Scheduler) next() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return task{}, false
	}

	t := s.queue[0]
	s.queue[0] = task{}
	s.queue = s.queue[1:]
	return t, true
}

func (s *Scheduler) work() {
	defer close(s.stopped)

	for {
		t, ok := s.next()
		if !ok {
			s.logger.Debug().Msg("scheduler worker stopped")
			return
		}

		if err := s.admit(); err != nil {
			t.fail(fmt.Errorf("%w: %w", ErrSchedulerClosed, err))
			continue
		}

		if e := s.logger.Trace(); e.Enabled() {
			e.Int("pending", s.Pending()).Msg("dispatching call")
		}

		t.run(s.ctx)
	}
}

// admit takes a rate slot for the next dispatch, waiting only when the
// limiter has none free right now.
func (s *Scheduler) admit() error {
	if s.ctx.Err() != nil {
		return ratelimit.ErrContextCancelled
	}
	if s.limiter.Allow(s.ctx) {
		return nil
	}

	if e := s.logger.Debug(); e.Enabled() {
		if d, ok := s.limiter.(interface{ Delay() time.Duration }); ok {
			e = e.Dur("delay", d.Delay())
		}
		e.Int("pending", s.Pending()).Msg("rate limit reached, waiting")
	}
	return s.limiter.Wait(s.ctx)
}

// runCaptured invokes work, converting a panic into an error.
func runCaptured[T any](ctx context.Context, work func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scheduler: work panicked: %v", p)
		}
	}()
	return work(ctx)
}
