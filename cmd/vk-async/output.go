package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/omarluq/vk-async/internal/api"
)

// callHeader is the object every call record starts from.
func callHeader(account, method string) []byte {
	out, _ := sjson.SetBytes([]byte(`{}`), "account", account)
	out, _ = sjson.SetBytes(out, "method", method)
	return out
}

// encodeCall renders one successful call as a JSON object.
func encodeCall(account, method string, res *api.CallResult) ([]byte, error) {
	out := callHeader(account, method)
	var err error

	if out, err = sjson.SetBytes(out, "attempts", res.Attempts); err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, "response", res.Response); err != nil {
		return nil, err
	}
	if len(res.Warnings) == 0 {
		return out, nil
	}

	warnings := lo.Map(res.Warnings, func(w *api.MethodError, _ int) map[string]any {
		return map[string]any{"code": w.Code, "message": w.Message}
	})
	return sjson.SetBytes(out, "warnings", warnings)
}

// encodeError renders err under the "error" key of base.
// API errors keep their code; captchas carry the sid and image.
func encodeError(base []byte, err error) ([]byte, error) {
	if len(base) == 0 {
		base = []byte(`{}`)
	}

	fields := map[string]any{"message": err.Error()}

	var (
		merr    *api.MethodError
		captcha *api.CaptchaError
		serr    *api.StatusError
	)
	switch {
	case errors.As(err, &captcha):
		fields["code"] = api.CodeCaptchaNeeded
		fields["captcha_sid"] = captcha.Sid
		fields["captcha_img"] = captcha.Img
	case errors.As(err, &merr):
		fields["code"] = merr.Code
		fields["message"] = merr.Message
	case errors.As(err, &serr):
		fields["status"] = serr.StatusCode
	}

	return sjson.SetBytes(base, "error", fields)
}

// writeJSON prints doc followed by a newline, indented when pretty is set.
func writeJSON(w io.Writer, doc []byte, pretty bool) error {
	if pretty {
		doc = []byte(gjson.GetBytes(doc, "@pretty").Raw)
	}
	if len(doc) > 0 && doc[len(doc)-1] == '\n' {
		doc = doc[:len(doc)-1]
	}
	_, err := fmt.Fprintf(w, "%s\n", doc)
	return err
}
