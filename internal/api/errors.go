package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VK error codes with dedicated handling.
const (
	CodeAuthorizationFailed = 5
	CodeTooManyRequests     = 6
	CodeCaptchaNeeded       = 14
)

// Sentinel errors for API calls.
var (
	// ErrCaptchaRequired matches every *CaptchaError.
	ErrCaptchaRequired = errors.New("api: captcha required")

	// ErrEmptyMethod is returned when a call names no method.
	ErrEmptyMethod = errors.New("api: empty method name")
)

// MethodError is an error payload returned by an API method.
type MethodError struct {
	Message string
	Payload json.RawMessage
	Code    int
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("api: method error %d: %s", e.Code, e.Message)
}

// CaptchaError is returned when the provider demands a captcha before serving the call.
type CaptchaError struct {
	Sid     string
	Img     string
	Payload json.RawMessage
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("api: captcha required (sid %s)", e.Sid)
}

// Is makes errors.Is(err, ErrCaptchaRequired) true for any CaptchaError.
func (e *CaptchaError) Is(target error) bool {
	return target == ErrCaptchaRequired
}

// StatusError is returned when the response carries no classifiable payload.
type StatusError struct {
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: unexpected response (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api: unexpected response (status %d): %s", e.StatusCode, e.Body)
}
