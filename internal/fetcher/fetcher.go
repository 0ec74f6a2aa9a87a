// Package fetcher spreads API calls across several accounts.
//
// A Fetcher owns one api.Application per account and hands call i to
// account i mod N. Method values build dotted method names without I/O:
//
//	users, err := f.Method("users").Method("get").Invoke(ctx, api.Params{"user_ids": 1})
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/future"
	"github.com/omarluq/vk-async/internal/logging"
)

// ErrNoApplications is returned by New when no application is given.
var ErrNoApplications = errors.New("fetcher: no applications")

// ErrDuplicateAccount is returned by New when two applications share a name.
var ErrDuplicateAccount = errors.New("fetcher: duplicate account")

// Options configures a Fetcher.
type Options struct {
	Logger *zerolog.Logger
}

// Fetcher multiplexes calls over a fixed set of accounts.
type Fetcher struct {
	rr     *roundRobin[*api.Application]
	byName map[string]*api.Application
	logger *zerolog.Logger
}

// New creates a Fetcher over apps. The order of apps is the rotation order.
func New(apps []*api.Application, opts Options) (*Fetcher, error) {
	if len(apps) == 0 {
		return nil, ErrNoApplications
	}

	byName := make(map[string]*api.Application, len(apps))
	for _, app := range apps {
		if _, dup := byName[app.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, app.Name())
		}
		byName[app.Name()] = app
	}

	return &Fetcher{
		rr:     newRoundRobin(apps),
		byName: byName,
		logger: logging.Nop(opts.Logger),
	}, nil
}

// Applications returns the accounts in rotation order.
func (f *Fetcher) Applications() []*api.Application {
	return f.rr.items
}

// Application returns the account with the given name.
func (f *Fetcher) Application(name string) (*api.Application, bool) {
	app, ok := f.byName[name]
	return app, ok
}

// Next returns the application that serves the next dispatch.
func (f *Fetcher) Next() *api.Application {
	idx, app := f.rr.pick()
	f.logger.Trace().Int("index", idx).Str("account", app.Name()).Msg("account selected")
	return app
}

// Call dispatches method to the next account.
func (f *Fetcher) Call(
	ctx context.Context, method string, params api.Params, opts ...api.CallOption,
) *future.Continuation[json.RawMessage] {
	return f.Next().Call(ctx, method, params, opts...)
}

// Invoke dispatches method to the next account and waits for the response.
func (f *Fetcher) Invoke(ctx context.Context, method string, params api.Params, opts ...api.CallOption) (json.RawMessage, error) {
	return f.Call(ctx, method, params, opts...).Await(ctx)
}

// Method starts a method name. name may already contain dots.
func (f *Fetcher) Method(name string) Method {
	return Method{fetcher: f}.Method(name)
}

// Close disposes every account scheduler and returns all failures joined.
func (f *Fetcher) Close(ctx context.Context) error {
	errs := lo.FilterMap(f.rr.items, func(app *api.Application, _ int) (error, bool) {
		if err := app.Close(ctx); err != nil {
			return fmt.Errorf("fetcher: close %s: %w", app.Name(), err), true
		}
		return nil, false
	})
	return errors.Join(errs...)
}
