package auth

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseForms(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
<FORM action="search">
  <input type="hidden" name="q" value="x">
</FORM>
<form method="post" action="https://login.vk.com/?act=login&amp;soft=1">
  <input type="hidden" name="ip_h" value="1a">
  <input type="hidden" name="lg_h" value="2b"/>
  <input type="text" name="email">
  <input name="pass" type="password">
</form>
<input type="hidden" name="orphan" value="z">
</body></html>`)

	forms := parseForms(body, mustURL(t, "https://m.vk.com/login"))
	require.Len(t, forms, 2)

	assert.Equal(t, http.MethodGet, forms[0].Method)
	assert.Equal(t, "https://m.vk.com/search", forms[0].Action)
	assert.Equal(t, "x", forms[0].Fields.Get("q"))

	assert.Equal(t, http.MethodPost, forms[1].Method)
	assert.Equal(t, "https://login.vk.com/?act=login&soft=1", forms[1].Action)
	assert.Equal(t, url.Values{"ip_h": {"1a"}, "lg_h": {"2b"}}, forms[1].Fields)
}

func TestFirstForm(t *testing.T) {
	t.Parallel()

	base := mustURL(t, "https://oauth.vk.com/authorize")

	tests := []struct {
		name       string
		body       string
		postOnly   bool
		wantAction string
		wantOK     bool
	}{
		{
			name:       "first form",
			body:       `<form action="/a"></form><form method="post" action="/b"></form>`,
			wantAction: "https://oauth.vk.com/a",
			wantOK:     true,
		},
		{
			name:       "post only skips get forms",
			body:       `<form action="/a"></form><form method="POST" action="/b"></form>`,
			postOnly:   true,
			wantAction: "https://oauth.vk.com/b",
			wantOK:     true,
		},
		{
			name:   "form without action ignored",
			body:   `<form method="post"></form>`,
			wantOK: false,
		},
		{
			name:   "no form",
			body:   `{"error":"invalid_request"}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, ok := firstForm([]byte(tt.body), base, tt.postOnly)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantAction, f.Action)
			}
		})
	}
}

func TestTokenFromURL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		raw        string
		wantToken  string
		wantUser   string
		wantExpiry time.Time
		wantOK     bool
	}{
		{
			name:       "fragment",
			raw:        "https://oauth.vk.com/blank.html#access_token=abc&expires_in=3600&user_id=5",
			wantToken:  "abc",
			wantUser:   "5",
			wantExpiry: now.Add(time.Hour),
			wantOK:     true,
		},
		{
			name:      "query",
			raw:       "https://oauth.vk.com/blank.html?access_token=def&expires_in=0&user_id=6",
			wantToken: "def",
			wantUser:  "6",
			wantOK:    true,
		},
		{
			name:      "missing expires_in",
			raw:       "https://oauth.vk.com/blank.html#access_token=ghi",
			wantToken: "ghi",
			wantOK:    true,
		},
		{
			name:   "no token",
			raw:    "https://oauth.vk.com/authorize?client_id=1",
			wantOK: false,
		},
		{
			name:   "error fragment",
			raw:    "https://oauth.vk.com/blank.html#error=access_denied",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tok, ok := tokenFromURL(mustURL(t, tt.raw), now)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantToken, tok.AccessToken)
			assert.Equal(t, "bearer", tok.TokenType)
			assert.Equal(t, tt.wantUser, UserID(tok))
			assert.Equal(t, tt.wantExpiry, tok.Expiry)
		})
	}

	_, ok := tokenFromURL(nil, now)
	assert.False(t, ok)
}
