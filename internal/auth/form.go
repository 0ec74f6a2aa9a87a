package auth

import (
	"bytes"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/oauth2"
)

// htmlForm is a scraped <form> with its hidden fields.
type htmlForm struct {
	Fields url.Values
	Action string
	Method string
}

// parseForms returns every form in body with its action resolved against base.
func parseForms(body []byte, base *url.URL) []*htmlForm {
	var (
		forms []*htmlForm
		cur   *htmlForm
	)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return forms

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Form:
				cur = &htmlForm{
					Fields: url.Values{},
					Method: strings.ToUpper(attr(tok, "method")),
					Action: resolve(base, attr(tok, "action")),
				}
				if cur.Method == "" {
					cur.Method = http.MethodGet
				}
				forms = append(forms, cur)
			case atom.Input:
				if cur == nil || !strings.EqualFold(attr(tok, "type"), "hidden") {
					continue
				}
				if name := attr(tok, "name"); name != "" {
					cur.Fields.Add(name, attr(tok, "value"))
				}
			}

		case html.EndTagToken:
			if z.Token().DataAtom == atom.Form {
				cur = nil
			}
		}
	}
}

// firstForm returns the first form with an action, optionally requiring POST.
func firstForm(body []byte, base *url.URL, postOnly bool) (*htmlForm, bool) {
	for _, f := range parseForms(body, base) {
		if f.Action == "" {
			continue
		}
		if postOnly && f.Method != http.MethodPost {
			continue
		}
		return f, true
	}
	return nil, false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

// tokenFromURL extracts the implicit-grant token from the query or fragment of u.
func tokenFromURL(u *url.URL, now time.Time) (*oauth2.Token, bool) {
	if u == nil {
		return nil, false
	}

	values := u.Query()
	if values.Get("access_token") == "" {
		fragment, err := url.ParseQuery(u.EscapedFragment())
		if err != nil {
			return nil, false
		}
		values = fragment
	}

	access := values.Get("access_token")
	if access == "" {
		return nil, false
	}

	tok := &oauth2.Token{
		AccessToken: access,
		TokenType:   "bearer",
	}

	expiresIn, err := strconv.ParseInt(values.Get("expires_in"), 10, 64)
	if err == nil && expiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(expiresIn) * time.Second)
	}

	extra := map[string]interface{}{
		"user_id":    values.Get("user_id"),
		"expires_in": expiresIn,
	}
	return tok.WithExtra(extra), true
}

// UserID returns the user_id recorded with the token, if any.
func UserID(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	if id, ok := tok.Extra("user_id").(string); ok {
		return id
	}
	return ""
}
