package transport_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/vk-async/internal/transport"
)

// stubTransport returns a fixed outcome and counts calls.
type stubTransport struct {
	err    error
	calls  atomic.Int32
	status int
}

func (s *stubTransport) Post(context.Context, string, url.Values, http.Header, time.Duration) (*transport.Response, error) {
	return s.respond()
}

func (s *stubTransport) Get(context.Context, string, http.Header, time.Duration) (*transport.Response, error) {
	return s.respond()
}

func (s *stubTransport) respond() (*transport.Response, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &transport.Response{StatusCode: s.status}, nil
}

func TestBreaker_OpensAfterServerErrors(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{status: http.StatusInternalServerError}
	b := transport.NewBreaker(stub, "main", transport.BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		resp, err := b.Post(context.Background(), "http://api", nil, nil, time.Second)
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}

	assert.Equal(t, transport.StateOpen, b.State())

	_, err := b.Post(context.Background(), "http://api", nil, nil, time.Second)
	assert.ErrorIs(t, err, transport.ErrCircuitOpen)
	assert.Equal(t, int32(3), stub.calls.Load(), "open circuit must not reach the transport")
}

func TestBreaker_IgnoresTimeoutsAndCancellation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"timeout", fmt.Errorf("%w after 3 attempt(s)", transport.ErrTimeout)},
		{"canceled", context.Canceled},
		{"deadline", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := &stubTransport{err: tt.err}
			b := transport.NewBreaker(stub, "main", transport.BreakerConfig{FailureThreshold: 2}, nil)

			for i := 0; i < 5; i++ {
				_, err := b.Get(context.Background(), "http://api", nil, time.Second)
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, transport.StateClosed, b.State())
		})
	}
}

func TestBreaker_CountsConnectionErrors(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{err: errors.New("connection refused")}
	b := transport.NewBreaker(stub, "main", transport.BreakerConfig{FailureThreshold: 2}, nil)

	for i := 0; i < 2; i++ {
		_, _ = b.Post(context.Background(), "http://api", nil, nil, time.Second)
	}
	assert.Equal(t, transport.StateOpen, b.State())
}

func TestBreaker_SuccessKeepsClosed(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{status: http.StatusOK}
	b := transport.NewBreaker(stub, "main", transport.BreakerConfig{FailureThreshold: 1}, nil)

	for i := 0; i < 10; i++ {
		_, err := b.Post(context.Background(), "http://api", nil, nil, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, transport.StateClosed, b.State())
	assert.Equal(t, "main", b.Name())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{status: http.StatusServiceUnavailable}
	b := transport.NewBreaker(stub, "main", transport.BreakerConfig{
		FailureThreshold: 1,
		OpenDuration:     50 * time.Millisecond,
		HalfOpenProbes:   1,
	}, nil)

	_, _ = b.Post(context.Background(), "http://api", nil, nil, time.Second)
	require.Equal(t, transport.StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, transport.StateHalfOpen, b.State())

	stub.status = http.StatusOK
	_, err := b.Post(context.Background(), "http://api", nil, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, transport.StateClosed, b.State())
}

func TestBreaker_Disabled(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{status: http.StatusInternalServerError}
	b := transport.NewBreaker(stub, "main", transport.BreakerConfig{FailureThreshold: 1, Disabled: true}, nil)

	for i := 0; i < 5; i++ {
		_, err := b.Post(context.Background(), "http://api", nil, nil, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), stub.calls.Load())
}
