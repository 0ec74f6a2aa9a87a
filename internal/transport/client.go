package transport

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Default retry settings.
const (
	DefaultRetryWaitMin = 50 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
	DefaultMaxRedirects = 20
	DefaultUserAgent    = "vk-async"
)

// Options configures a Client.
type Options struct {
	// Logger receives retry and redirect events. Nil disables logging.
	Logger *zerolog.Logger

	// HTTPClient is the base client. Its Jar and CheckRedirect are ignored.
	// Nil uses a pooled client from go-cleanhttp.
	HTTPClient *http.Client

	// UserAgent is sent with every request. Empty means DefaultUserAgent.
	UserAgent string

	// MaxTimeoutRetries caps the retries of a timed-out attempt. Zero means unbounded.
	MaxTimeoutRetries int

	// MaxRedirects caps the hops Session.Follow walks. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// RetryWaitMin and RetryWaitMax bound the backoff between timed-out attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client performs single-hop requests, retrying only attempts that time out.
type Client struct {
	http         *http.Client
	logger       zerolog.Logger
	userAgent    string
	maxRetries   int
	maxRedirects int
	waitMin      time.Duration
	waitMax      time.Duration
}

// NewClient creates a Client. Redirects are never followed automatically.
func NewClient(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = cleanhttp.DefaultPooledClient()
	}

	hc := *base
	hc.Jar = nil
	hc.Timeout = 0
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Client{
		http:         &hc,
		logger:       logger,
		userAgent:    opts.UserAgent,
		maxRetries:   opts.MaxTimeoutRetries,
		maxRedirects: opts.MaxRedirects,
		waitMin:      opts.RetryWaitMin,
		waitMax:      opts.RetryWaitMax,
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.maxRetries <= 0 {
		c.maxRetries = math.MaxInt
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = DefaultMaxRedirects
	}
	if c.waitMin <= 0 {
		c.waitMin = DefaultRetryWaitMin
	}
	if c.waitMax < c.waitMin {
		c.waitMax = max(DefaultRetryWaitMax, c.waitMin)
	}

	return c
}

// Post implements Transport.
func (c *Client) Post(
	ctx context.Context, rawURL string, form url.Values, headers http.Header, timeout time.Duration,
) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	return c.do(ctx, http.MethodPost, u, []byte(form.Encode()), headers, timeout, nil)
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	return c.do(ctx, http.MethodGet, u, nil, headers, timeout, nil)
}

// do sends one hop. Cookies from jar are attached to the request and cookies set
// by the response are merged back into jar before returning.
func (c *Client) do(
	ctx context.Context,
	method string,
	u *url.URL,
	body []byte,
	headers http.Header,
	timeout time.Duration,
	jar http.CookieJar,
) (*Response, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), raw)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}

	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if jar != nil {
		for _, cookie := range jar.Cookies(u) {
			req.AddCookie(cookie)
		}
	}

	var data []byte
	req.SetResponseHandler(func(resp *http.Response) error {
		defer resp.Body.Close()
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		data = b
		return nil
	})

	resp, err := c.retrier(ctx, timeout).Do(req)
	if err != nil {
		return nil, err
	}

	if jar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			jar.SetCookies(u, cookies)
		}
	}

	c.logger.Trace().
		Str("method", method).
		Str("host", u.Host).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Msg("http exchange")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		FinalURL:   u,
	}, nil
}

// retrier builds a retryablehttp client whose attempts each get timeout.
func (c *Client) retrier(ctx context.Context, timeout time.Duration) *retryablehttp.Client {
	hc := *c.http
	if timeout > 0 {
		hc.Timeout = timeout
	}

	return &retryablehttp.Client{
		HTTPClient:   &hc,
		Logger:       retryLogger{logger: c.logger},
		RetryWaitMin: c.waitMin,
		RetryWaitMax: c.waitMax,
		RetryMax:     c.maxRetries,
		CheckRetry:   retryOnTimeout,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: func(resp *http.Response, err error, attempts int) (*http.Response, error) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if ctx.Err() == nil && IsTimeout(err) {
				return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrTimeout, attempts, err)
			}
			return nil, err
		},
	}
}

// retryOnTimeout retries an attempt only when it timed out and the caller is still waiting.
func retryOnTimeout(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return IsTimeout(err), nil
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(redactFields(keysAndValues)).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(redactFields(keysAndValues)).Msg(msg)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(redactFields(keysAndValues)).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(redactFields(keysAndValues)).Msg(msg)
}

// redactFields strips query strings from logged URLs; they may carry credentials.
func redactFields(keysAndValues []interface{}) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	copy(out, keysAndValues)
	for i := 1; i < len(out); i += 2 {
		if key, ok := out[i-1].(string); ok && key == "url" {
			if s, ok := out[i].(string); ok {
				if idx := strings.IndexAny(s, "?#"); idx >= 0 {
					out[i] = s[:idx]
				}
			}
		}
	}
	return out
}
