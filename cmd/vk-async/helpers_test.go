package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/auth"
	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/ratelimit"
	"github.com/omarluq/vk-async/internal/scheduler"
	"github.com/omarluq/vk-async/internal/transport"
)

// stubTransport answers like the API: methods starting with "fail." get
// error 100, "captcha." gets error 14, everything else echoes the call.
type stubTransport struct {
	account string
}

func (s stubTransport) Post(
	_ context.Context, rawURL string, form url.Values, _ http.Header, _ time.Duration,
) (*transport.Response, error) {
	method := path.Base(rawURL)

	var body string
	switch {
	case strings.HasPrefix(method, "fail."):
		body = `{"error":{"error_code":100,"error_msg":"One of the parameters specified was missing or invalid"}}`
	case strings.HasPrefix(method, "captcha."):
		body = `{"error":{"error_code":14,"error_msg":"Captcha needed","captcha_sid":"548","captcha_img":"https://vk.com/captcha.php?sid=548"}}`
	default:
		body = fmt.Sprintf(`{"response":{"account":%q,"user_ids":%q}}`, s.account, form.Get("user_ids"))
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (s stubTransport) Get(context.Context, string, http.Header, time.Duration) (*transport.Response, error) {
	return nil, errors.New("unexpected GET")
}

const testToken = "seed-token-abcdef123456"

// countingAcquirer issues "fresh-token-<n>" tokens and counts acquisitions.
type countingAcquirer struct {
	calls atomic.Int32
}

func (a *countingAcquirer) Acquire(context.Context, string, auth.Credentials) (*oauth2.Token, error) {
	n := a.calls.Add(1)
	return &oauth2.Token{AccessToken: fmt.Sprintf("fresh-token-%08d", n)}, nil
}

func newTestApp(name string, keeper *auth.Keeper) *api.Application {
	sched := scheduler.New(ratelimit.NewSlidingWindowLimiter(1000), scheduler.Options{Name: name})
	return api.New(keeper, sched, stubTransport{account: name}, api.Options{})
}

func newTestFetcher(t *testing.T, names ...string) *fetcher.Fetcher {
	t.Helper()

	apps := make([]*api.Application, 0, len(names))
	for _, name := range names {
		keeper := auth.NewKeeper(name, auth.Credentials{}, nil, auth.KeeperOptions{
			Seed: &oauth2.Token{AccessToken: testToken},
		})
		apps = append(apps, newTestApp(name, keeper))
	}
	return fetcherOf(t, apps...)
}

func fetcherOf(t *testing.T, apps ...*api.Application) *fetcher.Fetcher {
	t.Helper()

	f, err := fetcher.New(apps, fetcher.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.Close(ctx)
	})
	return f
}
