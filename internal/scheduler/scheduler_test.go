package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/vk-async/internal/future"
	"github.com/omarluq/vk-async/internal/ratelimit"
	"github.com/omarluq/vk-async/internal/scheduler"
)

// unlimited admits every dispatch immediately.
type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return ratelimit.ErrContextCancelled
	}
	return nil
}

func (unlimited) Allow(context.Context) bool { return true }

func (unlimited) SetLimit(int) {}

func (unlimited) GetUsage() ratelimit.Usage { return ratelimit.Usage{} }

// budgeted admits the first n dispatches without waiting and counts the
// dispatches that had to wait.
type budgeted struct {
	free  atomic.Int32
	waits atomic.Int32
}

func (b *budgeted) Wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return ratelimit.ErrContextCancelled
	}
	b.waits.Add(1)
	return nil
}

func (b *budgeted) Allow(context.Context) bool { return b.free.Add(-1) >= 0 }

func (*budgeted) SetLimit(int) {}

func (*budgeted) GetUsage() ratelimit.Usage { return ratelimit.Usage{} }

func newScheduler(t *testing.T, limiter ratelimit.RateLimiter, policy scheduler.DisposePolicy) *scheduler.Scheduler {
	t.Helper()

	s := scheduler.New(limiter, scheduler.Options{Name: "test", Policy: policy})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestScheduler_BurstRespectsRate(t *testing.T) {
	t.Parallel()

	const (
		k = 20 // 50ms spacing
		m = 10
	)
	s := newScheduler(t, ratelimit.NewSlidingWindowLimiter(k), scheduler.DisposeDrain)

	var (
		mu         sync.Mutex
		dispatches []time.Time
	)

	start := time.Now()
	calls := make([]*future.Continuation[int], 0, m)
	for i := 0; i < m; i++ {
		i := i
		calls = append(calls, scheduler.Submit(s, func(context.Context) (int, error) {
			mu.Lock()
			dispatches = append(dispatches, time.Now())
			mu.Unlock()
			return i, nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i, c := range calls {
		v, err := c.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v, "results resolve in submission order")
	}

	minGap := time.Second / k
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(m-1)*minGap)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dispatches, m)
	for i := 1; i < len(dispatches); i++ {
		// Timestamps are taken after wake-up, so allow for scheduling jitter.
		assert.GreaterOrEqual(t, dispatches[i].Sub(dispatches[i-1]), minGap-20*time.Millisecond)
	}
}

func TestScheduler_WaitsOnlyWhenThrottled(t *testing.T) {
	t.Parallel()

	limiter := &budgeted{}
	limiter.free.Store(2)
	s := newScheduler(t, limiter, scheduler.DisposeDrain)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		v, err := scheduler.Submit(s, func(context.Context) (int, error) { return i, nil }).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(3), limiter.waits.Load(), "only dispatches past the free budget wait")
}

func TestScheduler_FIFO(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, unlimited{}, scheduler.DisposeDrain)

	var (
		mu    sync.Mutex
		order []int
	)

	calls := make([]*future.Continuation[int], 0, 50)
	for i := 0; i < 50; i++ {
		i := i
		calls = append(calls, scheduler.Submit(s, func(context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	for _, c := range calls {
		_, err := c.Await(context.Background())
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestScheduler_ErrorsDoNotStopWorker(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, unlimited{}, scheduler.DisposeDrain)
	boom := errors.New("boom")

	failed := scheduler.Submit(s, func(context.Context) (int, error) {
		return 0, boom
	})
	panicked := scheduler.Submit(s, func(context.Context) (int, error) {
		panic("kaboom")
	})
	ok := scheduler.Submit(s, func(context.Context) (int, error) {
		return 7, nil
	})

	ctx := context.Background()

	_, err := failed.Await(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = panicked.Await(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	v, err := ok.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestScheduler_CloseDrain(t *testing.T) {
	t.Parallel()

	s := scheduler.New(ratelimit.NewSlidingWindowLimiter(50), scheduler.Options{})

	calls := make([]*future.Continuation[int], 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		calls = append(calls, scheduler.Submit(s, func(context.Context) (int, error) {
			return i * 10, nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	for i, c := range calls {
		require.True(t, c.IsResolved(), "call %d resolved before Close returned", i)
		v, err := c.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, i*10, v)
	}

	select {
	case <-s.Done():
	default:
		t.Fatal("worker still running after Close")
	}
}

func TestScheduler_CloseCancel(t *testing.T) {
	t.Parallel()

	s := scheduler.New(unlimited{}, scheduler.Options{Policy: scheduler.DisposeCancel})

	started := make(chan struct{})
	running := scheduler.Submit(s, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started

	queued := make([]*future.Continuation[int], 0, 3)
	for i := 0; i < 3; i++ {
		queued = append(queued, scheduler.Submit(s, func(context.Context) (int, error) {
			return 1, nil
		}))
	}
	assert.Equal(t, 3, s.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	_, err := running.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	for _, c := range queued {
		_, err := c.Await(ctx)
		assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
	}
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_SubmitAfterClose(t *testing.T) {
	t.Parallel()

	s := scheduler.New(unlimited{}, scheduler.Options{})
	require.NoError(t, s.Close(context.Background()))

	called := false
	c := scheduler.Submit(s, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})

	require.True(t, c.IsResolved())
	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
	assert.False(t, called)
}

func TestScheduler_CloseIdempotent(t *testing.T) {
	t.Parallel()

	s := scheduler.New(unlimited{}, scheduler.Options{})
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestScheduler_CloseTimeout(t *testing.T) {
	t.Parallel()

	s := scheduler.New(unlimited{}, scheduler.Options{})

	started := make(chan struct{})
	blocked := scheduler.Submit(s, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Giving up cancels the worker context, so the running item finishes.
	_, err = blocked.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	<-s.Done()
}

func TestParseDisposePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    scheduler.DisposePolicy
		wantErr bool
	}{
		{"", scheduler.DisposeDrain, false},
		{"drain", scheduler.DisposeDrain, false},
		{"cancel", scheduler.DisposeCancel, false},
		{"abort", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := scheduler.ParseDisposePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
