package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential acquisition.
var (
	// ErrLoginFlowChanged is returned when the login page has no form to submit.
	ErrLoginFlowChanged = errors.New("auth: login flow changed")

	// ErrAuthFailed is returned when the provider rejects the credentials or the grant.
	ErrAuthFailed = errors.New("auth: authorization failed")

	// ErrCaptchaRequired is returned when the login form demands a captcha.
	ErrCaptchaRequired = errors.New("auth: captcha required")

	// ErrTwoFactorRequired is returned when the login demands a second factor code.
	ErrTwoFactorRequired = errors.New("auth: two-factor code required")

	// ErrPhoneNumberRequired is returned when the login demands phone confirmation.
	ErrPhoneNumberRequired = errors.New("auth: phone number required")

	// ErrAuthGrant matches every *GrantError.
	ErrAuthGrant = errors.New("auth: oauth grant error")

	// ErrNoCredentials is returned when a token is needed but the account has no login.
	ErrNoCredentials = errors.New("auth: no credentials to acquire a token")
)

// GrantError is the error payload returned by the authorize endpoint.
type GrantError struct {
	Err         string
	Description string
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("auth: oauth grant error: [%s] %s", e.Err, e.Description)
}

// Is makes errors.Is(err, ErrAuthGrant) true for any GrantError.
func (e *GrantError) Is(target error) bool {
	return target == ErrAuthGrant
}

// CaptchaError carries the login page URL that asked for a captcha.
type CaptchaError struct {
	URL string
}

func (e *CaptchaError) Error() string {
	return "auth: captcha required at " + e.URL
}

// Is makes errors.Is(err, ErrCaptchaRequired) true for any CaptchaError.
func (e *CaptchaError) Is(target error) bool {
	return target == ErrCaptchaRequired
}
