package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/omarluq/vk-async/internal/auth"
)

// countingAcquirer hands out numbered tokens.
type countingAcquirer struct {
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (c *countingAcquirer) Acquire(ctx context.Context, _ string, _ auth.Credentials) (*oauth2.Token, error) {
	n := c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &oauth2.Token{AccessToken: fmt.Sprintf("token-%d", n), TokenType: "bearer"}, nil
}

var creds = auth.Credentials{AppID: "1", Login: "u", Password: "p"}

func TestKeeper_AcquiresOnce(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	for i := 0; i < 3; i++ {
		tok, err := k.EnsureToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok.AccessToken)
	}
	assert.Equal(t, int32(1), acq.calls.Load())
}

func TestKeeper_ConcurrentCallersShareAcquisition(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{delay: 50 * time.Millisecond}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := k.EnsureToken(context.Background())
			if err == nil {
				tokens[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), acq.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "token-1", tok)
	}
}

func TestKeeper_DropForcesReacquire(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	first, err := k.EnsureToken(context.Background())
	require.NoError(t, err)

	k.Drop()
	assert.Nil(t, k.Current())

	second, err := k.EnsureToken(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, int32(2), acq.calls.Load())
}

func TestKeeper_InvalidateOnlyDropsHeldToken(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	stale, err := k.EnsureToken(context.Background())
	require.NoError(t, err)
	require.True(t, k.Invalidate(stale))

	fresh, err := k.EnsureToken(context.Background())
	require.NoError(t, err)

	assert.False(t, k.Invalidate(stale), "a stale token must not evict the fresh one")
	assert.Same(t, fresh, k.Current())
	assert.False(t, k.Invalidate(nil))
}

func TestKeeper_Seed(t *testing.T) {
	t.Parallel()

	t.Run("valid seed is used", func(t *testing.T) {
		t.Parallel()

		acq := &countingAcquirer{}
		seed := &oauth2.Token{AccessToken: "seeded", TokenType: "bearer"}
		k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{Seed: seed})

		tok, err := k.EnsureToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "seeded", tok.AccessToken)
		assert.Equal(t, int32(0), acq.calls.Load())
	})

	t.Run("expired seed is replaced", func(t *testing.T) {
		t.Parallel()

		acq := &countingAcquirer{}
		seed := &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}
		k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{Seed: seed})

		tok, err := k.EnsureToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok.AccessToken)
	})

	t.Run("seed without credentials cannot be renewed", func(t *testing.T) {
		t.Parallel()

		seed := &oauth2.Token{AccessToken: "seeded"}
		k := auth.NewKeeper("main", auth.Credentials{}, &countingAcquirer{}, auth.KeeperOptions{Seed: seed})

		_, err := k.EnsureToken(context.Background())
		require.NoError(t, err)

		k.Drop()
		_, err = k.EnsureToken(context.Background())
		assert.ErrorIs(t, err, auth.ErrNoCredentials)
	})
}

func TestKeeper_FailuresPropagateAndAreNotCached(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{err: auth.ErrTwoFactorRequired}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	_, err := k.EnsureToken(context.Background())
	assert.ErrorIs(t, err, auth.ErrTwoFactorRequired)

	_, err = k.EnsureToken(context.Background())
	assert.ErrorIs(t, err, auth.ErrTwoFactorRequired)
	assert.Equal(t, int32(2), acq.calls.Load())
}

func TestKeeper_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	acq := &countingAcquirer{delay: 500 * time.Millisecond}
	k := auth.NewKeeper("main", creds, acq, auth.KeeperOptions{})

	go func() { _, _ = k.EnsureToken(context.Background()) }()

	require.Eventually(t, func() bool { return acq.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := k.EnsureToken(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestKeeper_TokenSource(t *testing.T) {
	t.Parallel()

	k := auth.NewKeeper("main", creds, &countingAcquirer{}, auth.KeeperOptions{})

	var src oauth2.TokenSource = k
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.AccessToken)
	assert.Equal(t, "main", k.Account())
}
