// Package auth acquires and keeps the bearer token of a VK account.
//
// Tokens are obtained the way a mobile browser would: the login page form is
// scraped and submitted with the account's credentials, the resulting session
// cookies are carried into the OAuth2 implicit-grant authorize endpoint, and the
// access token is read from the redirect target. The whole run is an explicit
// state machine whose transitions are logged at debug level.
//
// Keeper wraps an Acquirer for one account and serializes acquisition so that
// concurrent callers share a single in-flight login.
package auth

import "time"

// State is a step of the credential acquisition automaton.
type State string

// Acquisition states.
const (
	StateStart                   State = "start"
	StateFetchLoginForm          State = "fetch_login_form"
	StateSubmitCredentials       State = "submit_credentials"
	StateSessionEstablished      State = "session_established"
	StateCaptchaRequired         State = "captcha_required"
	StateTwoFactorRequired       State = "two_factor_required"
	StatePhoneRequired           State = "phone_required"
	StateLoginFailed             State = "login_failed"
	StateOAuthAuthorize          State = "oauth_authorize"
	StatePermissionGrantRequired State = "permission_grant_required"
	StateGrantSubmit             State = "grant_submit"
	StateTokenExtracted          State = "token_extracted"
	StateAuthFailed              State = "auth_failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateCaptchaRequired, StateTwoFactorRequired, StatePhoneRequired,
		StateLoginFailed, StateTokenExtracted, StateAuthFailed:
		return true
	default:
		return false
	}
}

// Defaults for the VK endpoints.
const (
	DefaultLoginURL     = "https://m.vk.com"
	DefaultAuthorizeURL = "https://oauth.vk.com/authorize"
	DefaultRedirectURI  = "https://oauth.vk.com/blank.html"
	DefaultScope        = "offline"
	DefaultAPIVersion   = "5.28"
	DefaultTimeout      = 20 * time.Second
)

// Login outcome markers.
const (
	sessionCookie     = "remixsid"
	sessionCookieIPv6 = "remixsid6"
	captchaMarker     = "sid="
	twoFactorMarker   = "act=authcheck"
	phoneMarker       = "security_check"
)

// Credentials identify an account to the login flow.
type Credentials struct {
	AppID    string
	Login    string
	Password string
	Scope    string
}

// CanLogin reports whether the credentials are enough to run the login flow.
func (c Credentials) CanLogin() bool {
	return c.AppID != "" && c.Login != "" && c.Password != ""
}

// GetScope returns the requested scope or DefaultScope.
func (c Credentials) GetScope() string {
	if c.Scope == "" {
		return DefaultScope
	}
	return c.Scope
}
