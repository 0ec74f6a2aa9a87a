package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// TokenMarker in a redirect target ends Follow without fetching the target.
const TokenMarker = "access_token="

// Session is a Client bound to a cookie jar. It scopes one credential
// acquisition run and is discarded afterwards.
type Session struct {
	*Client
	jar *cookiejar.Jar
}

// NewSession creates a Session with an empty cookie jar.
func NewSession(client *Client) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("transport: create cookie jar: %w", err)
	}
	return &Session{Client: client, jar: jar}, nil
}

// Post implements Transport, attaching and merging session cookies.
func (s *Session) Post(
	ctx context.Context, rawURL string, form url.Values, headers http.Header, timeout time.Duration,
) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	return s.do(ctx, http.MethodPost, u, []byte(form.Encode()), headers, timeout, s.jar)
}

// Get implements Transport, attaching and merging session cookies.
func (s *Session) Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}
	return s.do(ctx, http.MethodGet, u, nil, headers, timeout, s.jar)
}

// Follow sends a request and walks redirects one hop at a time.
//
// Cookies set by every hop are merged into the jar before the next hop is sent.
// 301, 302 and 303 continue with a body-less GET; 307 and 308 repeat the method
// and body. A Location containing TokenMarker is not fetched: it becomes the
// FinalURL of the returned response. Following also stops at the first
// non-redirect response or a redirect without Location.
func (s *Session) Follow(
	ctx context.Context,
	method, rawURL string,
	form url.Values,
	headers http.Header,
	timeout time.Duration,
) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse url: %w", err)
	}

	var body []byte
	if form != nil {
		body = []byte(form.Encode())
	}

	for hop := 0; ; hop++ {
		if hop > s.maxRedirects {
			return nil, fmt.Errorf("%w: stopped after %d hops", ErrTooManyRedirects, s.maxRedirects)
		}

		resp, err := s.do(ctx, method, u, body, headers, timeout, s.jar)
		if err != nil {
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil
		}

		next, err := u.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("transport: parse redirect location: %w", err)
		}

		s.logger.Trace().
			Int("hop", hop).
			Int("status", resp.StatusCode).
			Str("host", next.Host).
			Str("path", next.Path).
			Msg("following redirect")

		if strings.Contains(next.String(), TokenMarker) {
			resp.FinalURL = next
			return resp, nil
		}

		switch resp.StatusCode {
		case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			// method and body are kept
		default:
			method = http.MethodGet
			body = nil
		}
		u = next
	}
}

// Cookies returns the session cookies that would be sent to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// HasCookie reports whether a cookie named name would be sent to rawURL.
func (s *Session) HasCookie(rawURL, name string) bool {
	for _, c := range s.Cookies(rawURL) {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Close drops the session cookies.
func (s *Session) Close() {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err == nil {
		s.jar = jar
	}
}
