package fetcher

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/future"
)

// Method is an immutable, partially built method name bound to a Fetcher.
// Extending a Method never changes the receiver.
type Method struct {
	fetcher *Fetcher
	path    []string
}

// Method returns a copy of m extended with name. Empty segments are ignored.
func (m Method) Method(name string) Method {
	segments := lo.Compact(strings.Split(name, "."))

	path := make([]string, 0, len(m.path)+len(segments))
	path = append(path, m.path...)
	path = append(path, segments...)

	return Method{fetcher: m.fetcher, path: path}
}

// Name returns the dotted method name.
func (m Method) Name() string {
	return strings.Join(m.path, ".")
}

func (m Method) String() string {
	return m.Name()
}

// Call dispatches the method to the fetcher's next account.
func (m Method) Call(ctx context.Context, params api.Params, opts ...api.CallOption) *future.Continuation[json.RawMessage] {
	return m.fetcher.Call(ctx, m.Name(), params, opts...)
}

// Invoke dispatches the method and waits for its response.
func (m Method) Invoke(ctx context.Context, params api.Params, opts ...api.CallOption) (json.RawMessage, error) {
	return m.fetcher.Invoke(ctx, m.Name(), params, opts...)
}
