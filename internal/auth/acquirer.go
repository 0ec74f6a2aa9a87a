package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/omarluq/vk-async/internal/transport"
)

// TokenAcquirer obtains a fresh token for an account.
type TokenAcquirer interface {
	Acquire(ctx context.Context, account string, creds Credentials) (*oauth2.Token, error)
}

// Endpoints are the URLs the login flow talks to.
type Endpoints struct {
	LoginURL     string
	AuthorizeURL string
	RedirectURI  string
}

// AcquirerOptions configures an Acquirer.
type AcquirerOptions struct {
	// Logger receives state transitions. Nil disables logging.
	Logger *zerolog.Logger

	// Now overrides the clock used for token expiry.
	Now func() time.Time

	// Endpoints overrides the VK endpoints. Empty fields use the defaults.
	Endpoints Endpoints

	// APIVersion is sent as v to the authorize endpoint.
	APIVersion string

	// Timeout bounds every HTTP attempt. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Acquirer runs the login and OAuth2 implicit-grant flow.
// Each Acquire call uses its own cookie session.
type Acquirer struct {
	client     *transport.Client
	now        func() time.Time
	logger     zerolog.Logger
	endpoints  Endpoints
	apiVersion string
	timeout    time.Duration
}

// NewAcquirer creates an Acquirer that issues requests through client.
func NewAcquirer(client *transport.Client, opts AcquirerOptions) *Acquirer {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	a := &Acquirer{
		client:     client,
		now:        opts.Now,
		logger:     logger,
		endpoints:  opts.Endpoints,
		apiVersion: opts.APIVersion,
		timeout:    opts.Timeout,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.endpoints.LoginURL == "" {
		a.endpoints.LoginURL = DefaultLoginURL
	}
	if a.endpoints.AuthorizeURL == "" {
		a.endpoints.AuthorizeURL = DefaultAuthorizeURL
	}
	if a.endpoints.RedirectURI == "" {
		a.endpoints.RedirectURI = DefaultRedirectURI
	}
	if a.apiVersion == "" {
		a.apiVersion = DefaultAPIVersion
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}

	return a
}

// run is one pass through the automaton.
type run struct {
	session *transport.Session
	logger  zerolog.Logger
	state   State
}

func (r *run) to(next State) {
	r.logger.Debug().
		Str("from", string(r.state)).
		Str("to", string(next)).
		Msg("auth state transition")
	r.state = next
}

// Acquire logs in with creds and returns a token for creds.AppID.
func (a *Acquirer) Acquire(ctx context.Context, account string, creds Credentials) (*oauth2.Token, error) {
	if !creds.CanLogin() {
		return nil, ErrNoCredentials
	}

	session, err := transport.NewSession(a.client)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	r := &run{
		session: session,
		logger:  a.logger.With().Str("account", account).Logger(),
		state:   StateStart,
	}

	if err := a.login(ctx, r, creds); err != nil {
		return nil, err
	}

	tok, err := a.authorize(ctx, r, creds)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("user_id", UserID(tok)).
		Time("expiry", tok.Expiry).
		Msg("access token acquired")

	return tok, nil
}

func (a *Acquirer) login(ctx context.Context, r *run, creds Credentials) error {
	r.to(StateFetchLoginForm)

	resp, err := r.session.Follow(ctx, http.MethodGet, a.endpoints.LoginURL, nil, nil, a.timeout)
	if err != nil {
		return fmt.Errorf("auth: fetch login form: %w", err)
	}

	form, ok := firstForm(resp.Body, resp.FinalURL, false)
	if !ok {
		r.to(StateLoginFailed)
		return ErrLoginFlowChanged
	}

	r.to(StateSubmitCredentials)

	fields := cloneValues(form.Fields)
	fields.Set("email", creds.Login)
	fields.Set("pass", creds.Password)

	resp, err = r.session.Follow(ctx, http.MethodPost, form.Action, fields, nil, a.timeout)
	if err != nil {
		return fmt.Errorf("auth: submit credentials: %w", err)
	}

	next, err := a.loginOutcome(r.session, resp.FinalURL, form.Action)
	r.to(next)
	return err
}

// loginOutcome classifies the end of the credential submission.
func (a *Acquirer) loginOutcome(session *transport.Session, final *url.URL, action string) (State, error) {
	finalURL := final.String()

	established := strings.Contains(finalURL, transport.TokenMarker)
	for _, target := range []string{finalURL, action, a.endpoints.LoginURL} {
		if session.HasCookie(target, sessionCookie) || session.HasCookie(target, sessionCookieIPv6) {
			established = true
			break
		}
	}

	switch {
	case established:
		return StateSessionEstablished, nil
	case strings.Contains(finalURL, captchaMarker):
		return StateCaptchaRequired, &CaptchaError{URL: finalURL}
	case strings.Contains(finalURL, twoFactorMarker):
		return StateTwoFactorRequired, ErrTwoFactorRequired
	case strings.Contains(finalURL, phoneMarker):
		return StatePhoneRequired, ErrPhoneNumberRequired
	default:
		return StateLoginFailed, fmt.Errorf("%w: incorrect password", ErrAuthFailed)
	}
}

func (a *Acquirer) authorize(ctx context.Context, r *run, creds Credentials) (*oauth2.Token, error) {
	r.to(StateOAuthAuthorize)

	params := url.Values{
		"client_id":     {creds.AppID},
		"scope":         {creds.GetScope()},
		"display":       {"mobile"},
		"response_type": {"token"},
		"redirect_uri":  {a.endpoints.RedirectURI},
		"v":             {a.apiVersion},
	}

	resp, err := r.session.Follow(ctx, http.MethodPost, a.endpoints.AuthorizeURL, params, nil, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("auth: authorize: %w", err)
	}

	if tok, ok := tokenFromURL(resp.FinalURL, a.now()); ok {
		r.to(StateTokenExtracted)
		return tok, nil
	}

	form, ok := firstForm(resp.Body, resp.FinalURL, true)
	if !ok {
		r.to(StateAuthFailed)
		return nil, grantFailure(resp.Body)
	}

	r.to(StatePermissionGrantRequired)
	r.to(StateGrantSubmit)

	resp, err = r.session.Follow(ctx, http.MethodPost, form.Action, form.Fields, nil, a.timeout)
	if err != nil {
		return nil, fmt.Errorf("auth: submit grant: %w", err)
	}

	if tok, ok := tokenFromURL(resp.FinalURL, a.now()); ok {
		r.to(StateTokenExtracted)
		return tok, nil
	}

	r.to(StateAuthFailed)
	return nil, fmt.Errorf("%w: OAuth2 authorization error", ErrAuthFailed)
}

// grantFailure builds the error for an authorize response with neither token nor form.
func grantFailure(body []byte) error {
	if gjson.ValidBytes(body) {
		result := gjson.ParseBytes(body)
		if e := result.Get("error"); e.Exists() {
			return &GrantError{
				Err:         e.String(),
				Description: result.Get("error_description").String(),
			}
		}
	}
	return fmt.Errorf("%w: OAuth2 grant access error", ErrAuthFailed)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
