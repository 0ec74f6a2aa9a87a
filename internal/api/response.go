package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// maxErrorBody caps the body excerpt kept in a StatusError.
const maxErrorBody = 256

// CallResult is the outcome of a successful API call.
type CallResult struct {
	// Response is the raw value of the "response" field.
	Response json.RawMessage

	// Warnings are error payloads that preceded the response in the same body.
	Warnings []*MethodError

	// Attempts counts the HTTP requests the call needed.
	Attempts int
}

// parsed is one classified response body.
type parsed struct {
	captcha  *CaptchaError
	response json.RawMessage
	errors   []*MethodError
	found    bool
}

// find returns the first error payload carrying code.
func (p *parsed) find(code int) (*MethodError, bool) {
	return lo.Find(p.errors, func(e *MethodError) bool { return e.Code == code })
}

// splitValues splits a body made of concatenated JSON values.
func splitValues(body []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var values []json.RawMessage
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return values, err
		}
		values = append(values, raw)
	}
}

// parseBody classifies a method response body.
//
// The body may hold several JSON objects, e.g. an error followed by the
// response. The first value with a "response" field wins and earlier errors
// become warnings, except a captcha demand: it ends parsing immediately and
// fails the call even when a response follows.
func parseBody(body []byte) (*parsed, error) {
	values, err := splitValues(body)
	if len(values) == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	out := &parsed{}
	for _, raw := range values {
		value := gjson.ParseBytes(raw)

		if e := value.Get("error"); e.Exists() {
			merr := methodError(e)
			if merr.Code == CodeCaptchaNeeded {
				out.captcha = &CaptchaError{
					Sid:     e.Get("captcha_sid").String(),
					Img:     e.Get("captcha_img").String(),
					Payload: json.RawMessage(e.Raw),
				}
				return out, nil
			}
			out.errors = append(out.errors, merr)
		}

		if r := value.Get("response"); r.Exists() {
			out.response = json.RawMessage(r.Raw)
			out.found = true
			return out, nil
		}
	}

	return out, nil
}

// methodError converts an "error" object. OAuth-style errors carry only
// error_description, so it is the fallback message.
func methodError(e gjson.Result) *MethodError {
	message := e.Get("error_msg").String()
	if message == "" {
		message = e.Get("error_description").String()
	}
	if message == "" && e.Type == gjson.String {
		message = e.String()
	}

	return &MethodError{
		Code:    int(e.Get("error_code").Int()),
		Message: message,
		Payload: json.RawMessage(e.Raw),
	}
}

// newStatusError builds a StatusError with a bounded body excerpt.
func newStatusError(code int, body []byte) *StatusError {
	if code == 0 {
		code = http.StatusOK
	}
	excerpt := string(body)
	if len(excerpt) > maxErrorBody {
		excerpt = excerpt[:maxErrorBody] + "..."
	}
	return &StatusError{StatusCode: code, Body: excerpt}
}
