// Package api implements calls to VK API methods on behalf of one account.
//
// An Application owns the account's token keeper and scheduler. Every HTTP
// attempt, retries included, is admitted by the scheduler so the account
// never exceeds its rate.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/omarluq/vk-async/internal/future"
	"github.com/omarluq/vk-async/internal/logging"
	"github.com/omarluq/vk-async/internal/scheduler"
	"github.com/omarluq/vk-async/internal/transport"
)

// Defaults applied by New.
const (
	DefaultURL     = "https://api.vk.com/method/"
	DefaultVersion = "5.28"
	DefaultTimeout = 20 * time.Second
)

var apiHeaders = http.Header{
	"Accept":         {"application/json"},
	"Accept-Charset": {"utf-8"},
}

// TokenKeeper supplies the account token and accepts invalidations.
// *auth.Keeper implements it.
type TokenKeeper interface {
	EnsureToken(ctx context.Context) (*oauth2.Token, error)
	Invalidate(tok *oauth2.Token) bool
	Current() *oauth2.Token
	Drop()
	Account() string
}

// Options configures an Application.
type Options struct {
	Logger *zerolog.Logger

	// Executor runs Call bodies. Nil uses future.Goroutine.
	Executor future.Executor

	// Now stamps the timestamp parameter. Nil uses time.Now.
	Now func() time.Time

	URL     string
	Version string
	Timeout time.Duration

	// MaxRateLimitRetries caps retries of error 6. 0 retries forever.
	MaxRateLimitRetries int
}

// Application issues API calls for one account.
type Application struct {
	keeper    TokenKeeper
	sched     *scheduler.Scheduler
	transport transport.Transport
	exec      future.Executor
	logger    *zerolog.Logger
	now       func() time.Time
	name      string
	url       string
	version   string
	timeout   time.Duration
	maxRate   int
}

// New creates an Application. The scheduler must be dedicated to the account.
func New(keeper TokenKeeper, sched *scheduler.Scheduler, tr transport.Transport, opts Options) *Application {
	a := &Application{
		keeper:    keeper,
		sched:     sched,
		transport: tr,
		exec:      opts.Executor,
		logger:    logging.Nop(opts.Logger),
		now:       opts.Now,
		name:      keeper.Account(),
		url:       opts.URL,
		version:   opts.Version,
		timeout:   opts.Timeout,
		maxRate:   opts.MaxRateLimitRetries,
	}
	if a.exec == nil {
		a.exec = future.Goroutine
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.url == "" {
		a.url = DefaultURL
	}
	if a.version == "" {
		a.version = DefaultVersion
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	callID  string
	timeout time.Duration
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCallID sets the identifier attached to the call's log events.
func WithCallID(id string) CallOption {
	return func(o *callOptions) { o.callID = id }
}

// Name returns the account name.
func (a *Application) Name() string {
	return a.name
}

// Keeper returns the account token keeper.
func (a *Application) Keeper() TokenKeeper {
	return a.keeper
}

// Scheduler returns the account scheduler.
func (a *Application) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Close disposes the account scheduler according to its policy.
func (a *Application) Close(ctx context.Context) error {
	return a.sched.Close(ctx)
}

// Call starts method asynchronously and returns a continuation of its response.
// The first attempt is queued on the account scheduler before Call returns,
// so calls on one account are dispatched in the order Call was invoked.
func (a *Application) Call(
	ctx context.Context, method string, params Params, opts ...CallOption,
) *future.Continuation[json.RawMessage] {
	r, err := a.start(ctx, method, params, opts)
	if err != nil {
		return future.Failed[json.RawMessage](err)
	}
	return future.Run(a.exec, func() (json.RawMessage, error) {
		res, err := r.finish()
		if err != nil {
			return nil, err
		}
		return res.Response, nil
	})
}

// Invoke calls method and returns the raw "response" value.
func (a *Application) Invoke(ctx context.Context, method string, params Params, opts ...CallOption) (json.RawMessage, error) {
	res, err := a.Do(ctx, method, params, opts...)
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}

// Do calls method and returns the full outcome.
//
// Error 6 repeats the call, up to MaxRateLimitRetries when set. Error 5
// invalidates the token and repeats the call once. Error 14 fails with a
// *CaptchaError. Any other error payload fails with a *MethodError.
func (a *Application) Do(ctx context.Context, method string, params Params, opts ...CallOption) (*CallResult, error) {
	r, err := a.start(ctx, method, params, opts)
	if err != nil {
		return nil, err
	}
	return r.finish()
}

// run is one call in flight. pending is the attempt waiting in the scheduler.
type run struct {
	app     *Application
	ctx     context.Context
	pending *future.Continuation[attempt]
	values  url.Values
	logger  zerolog.Logger
	method  string
	timeout time.Duration
}

// attempt is the outcome of one HTTP request and the token it carried.
type attempt struct {
	resp *transport.Response
	tok  *oauth2.Token
}

// start validates the call and queues its first attempt on the caller's goroutine.
func (a *Application) start(ctx context.Context, method string, params Params, opts []CallOption) (*run, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}

	co := callOptions{timeout: a.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	ctx = logging.WithCallID(ctx, co.callID)
	r := &run{
		app: a,
		ctx: ctx,
		logger: logging.ForCall(ctx, a.logger).With().
			Str("account", a.name).
			Str("method", method).
			Logger(),
		values:  params.Values(),
		method:  method,
		timeout: co.timeout,
	}
	r.pending = a.dispatch(ctx, method, r.values, co.timeout)
	return r, nil
}

// finish awaits attempts and classifies each response until the call settles.
func (r *run) finish() (*CallResult, error) {
	a := r.app
	result := &CallResult{}
	reauthorized := false
	rateRetries := 0

	for {
		at, err := r.pending.Await(r.ctx)
		result.Attempts++
		if err != nil {
			return nil, fmt.Errorf("api: %s: %w", r.method, err)
		}
		resp := at.resp

		p, err := parseBody(resp.Body)
		if err != nil {
			r.logger.Debug().Err(err).Int("status", resp.StatusCode).Msg("unparseable response")
			return nil, newStatusError(resp.StatusCode, resp.Body)
		}

		if p.captcha != nil {
			return nil, p.captcha
		}

		if p.found {
			result.Response = p.response
			result.Warnings = p.errors
			for _, w := range p.errors {
				r.logger.Warn().Int("code", w.Code).Str("error", w.Message).Msg("api call returned a warning")
			}
			r.logger.Debug().Int("attempts", result.Attempts).Msg("api call succeeded")
			return result, nil
		}

		if merr, ok := p.find(CodeTooManyRequests); ok {
			rateRetries++
			if a.maxRate > 0 && rateRetries > a.maxRate {
				return nil, merr
			}
			r.logger.Debug().Int("retry", rateRetries).Msg("too many requests, retrying")
			r.pending = a.dispatch(r.ctx, r.method, r.values, r.timeout)
			continue
		}

		if merr, ok := p.find(CodeAuthorizationFailed); ok {
			if reauthorized {
				return nil, merr
			}
			reauthorized = true
			a.keeper.Invalidate(at.tok)
			r.logger.Info().Msg("authorization failed, acquiring a new token")
			r.pending = a.dispatch(r.ctx, r.method, r.values, r.timeout)
			continue
		}

		if len(p.errors) > 0 {
			return nil, p.errors[0]
		}

		return nil, newStatusError(resp.StatusCode, resp.Body)
	}
}

// dispatch queues one attempt on the account scheduler. The token is resolved
// inside the worker, once the attempt's turn has come.
func (a *Application) dispatch(
	ctx context.Context, method string, params url.Values, timeout time.Duration,
) *future.Continuation[attempt] {
	endpoint := a.url + method

	return scheduler.Submit(a.sched, func(workerCtx context.Context) (attempt, error) {
		if err := ctx.Err(); err != nil {
			return attempt{}, err
		}

		callCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(workerCtx, cancel)
		defer stop()

		tok, err := a.keeper.EnsureToken(callCtx)
		if err != nil {
			return attempt{}, err
		}

		resp, err := a.transport.Post(callCtx, endpoint, a.form(tok, params), apiHeaders, timeout)
		if err != nil {
			return attempt{}, err
		}
		return attempt{resp: resp, tok: tok}, nil
	})
}

// form merges params over the base parameters every call carries.
func (a *Application) form(tok *oauth2.Token, params url.Values) url.Values {
	form := url.Values{
		"timestamp":    {strconv.FormatInt(a.now().Unix(), 10)},
		"v":            {a.version},
		"access_token": {tok.AccessToken},
	}
	for key, values := range params {
		form[key] = values
	}
	return form
}
