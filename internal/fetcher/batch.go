package fetcher

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/future"
	"github.com/omarluq/vk-async/internal/ro"
)

// BatchCall is one entry of a batch.
type BatchCall struct {
	Params api.Params `json:"params,omitempty"`
	Method string     `json:"method"`
}

// BatchResult is the outcome of one BatchCall.
type BatchResult struct {
	Err      error
	Method   string
	Account  string
	Response json.RawMessage
	Index    int
}

type dispatched struct {
	call    *future.Continuation[json.RawMessage]
	method  string
	account string
	index   int
}

// Batch dispatches every call round robin and returns the outcomes in input order.
// Calls run concurrently across accounts and a failed call does not stop the
// others: its error is reported in its result. Batch itself fails only when
// the result stream is interrupted.
func (f *Fetcher) Batch(ctx context.Context, calls []BatchCall, opts ...api.CallOption) ([]BatchResult, error) {
	pending := lo.Map(calls, func(c BatchCall, i int) dispatched {
		app := f.Next()
		return dispatched{
			call:    app.Call(ctx, c.Method, c.Params, opts...),
			method:  c.Method,
			account: app.Name(),
			index:   i,
		}
	})

	results := ro.MapStream(ro.FromSlice(pending), func(d dispatched) BatchResult {
		response, err := d.call.Await(ctx)
		return BatchResult{
			Index:    d.index,
			Method:   d.method,
			Account:  d.account,
			Response: response,
			Err:      err,
		}
	})

	return ro.CollectWithContext(ctx, ro.LogEach(results, f.logger,
		func(e *zerolog.Event, r BatchResult) *zerolog.Event {
			return e.Int("index", r.Index).
				Str("method", r.Method).
				Str("account", r.Account).
				AnErr("error", r.Err)
		}))
}
