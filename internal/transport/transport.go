// Package transport executes the HTTP requests issued by the login flow and the API pipeline.
//
// The package provides:
//   - Client: single-hop requests with a timeout-only retry policy (go-retryablehttp)
//   - Session: a Client bound to a cookie jar, with manual redirect following
//   - Breaker: a circuit breaker guarding a Transport against repeated server failures
//
// Redirects are never followed automatically. Session.Follow walks them one hop
// at a time so that cookies set by intermediate responses reach the next request
// and token-bearing redirect targets can be captured without being fetched.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Sentinel errors for transport operations.
var (
	// ErrTimeout is returned when an attempt timed out and the retry budget is spent.
	ErrTimeout = errors.New("transport: timeout")

	// ErrTooManyRedirects is returned when Follow exceeds the redirect limit.
	ErrTooManyRedirects = errors.New("transport: too many redirects")

	// ErrCircuitOpen is returned by Breaker while the circuit is open.
	ErrCircuitOpen = errors.New("transport: circuit breaker is open")
)

// Response is a fully read HTTP response.
type Response struct {
	// Header holds the response headers.
	Header http.Header

	// FinalURL is the URL the exchange ended on. After Follow it may be a
	// token-bearing redirect target that was never fetched.
	FinalURL *url.URL

	// Body is the complete response body.
	Body []byte

	// StatusCode is the HTTP status of the last fetched hop.
	StatusCode int
}

// Transport performs single-hop HTTP requests. Redirect responses are returned as-is.
type Transport interface {
	// Post sends form URL-encoded. A timeout of zero disables the per-attempt timeout.
	Post(ctx context.Context, rawURL string, form url.Values, headers http.Header, timeout time.Duration) (*Response, error)

	// Get fetches rawURL.
	Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*Response, error)
}

// IsTimeout reports whether err represents a timed-out attempt.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRedirect reports whether code asks the client to go elsewhere.
func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
