package config

import (
	"fmt"
	"net/url"
)

// Valid rate limit strategies.
var validRateLimitStrategies = map[string]bool{
	"":               true, // Empty defaults to sliding_window
	"sliding_window": true,
	"token_bucket":   true,
}

// Valid dispose policies.
var validDisposePolicies = map[string]bool{
	"":       true, // Empty defaults to drain
	"drain":  true,
	"cancel": true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":      true, // Empty defaults to info
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
}

// Validate checks the configuration for errors.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateAPI(c, errs)
	validateAccounts(c, errs)
	validateRateLimit(c, errs)
	validateTransport(c, errs)
	validateScheduler(c, errs)
	validateLogging(c, errs)

	return errs.ToError()
}

func validateAPI(c *Config, errs *ValidationError) {
	for field, raw := range map[string]string{
		"api.url":           c.API.URL,
		"api.login_url":     c.API.LoginURL,
		"api.authorize_url": c.API.AuthorizeURL,
		"api.redirect_uri":  c.API.RedirectURI,
	} {
		validateURL(field, raw, errs)
	}

	if c.API.TimeoutMS < 0 {
		errs.Add("api.timeout_ms must be >= 0")
	}
	if c.API.MaxRateLimitRetries < 0 {
		errs.Add("api.max_rate_limit_retries must be >= 0")
	}
}

// validateURL accepts empty values, which fall back to defaults.
func validateURL(field, raw string, errs *ValidationError) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Addf("%s must be an absolute URL (got %q)", field, raw)
	}
}

func validateAccounts(c *Config, errs *ValidationError) {
	if len(c.Accounts) == 0 {
		errs.Add("at least one account is required")
		return
	}

	seen := make(map[string]bool)
	for i := range c.Accounts {
		validateAccount(&c.Accounts[i], i, seen, errs)
	}
}

func validateAccount(a *AccountConfig, index int, seen map[string]bool, errs *ValidationError) {
	prefix := func(field string) string {
		if a.Name != "" {
			return fmt.Sprintf("account[%s].%s", a.Name, field)
		}
		return fmt.Sprintf("accounts[%d].%s", index, field)
	}

	if a.Name == "" {
		errs.Addf("accounts[%d].name is required", index)
	} else {
		if seen[a.Name] {
			errs.Addf("duplicate account name: %s", a.Name)
		}
		seen[a.Name] = true
	}

	// An account needs either a seed token or a full set of login credentials.
	if a.AccessToken == "" && !a.CanLogin() {
		errs.Addf("%s requires access_token or app_id, username and password", prefix("credentials"))
	}

	if a.RequestsPerSecond < 0 {
		errs.Addf("%s must be >= 0 (got %d)", prefix("requests_per_second"), a.RequestsPerSecond)
	}
}

func validateRateLimit(c *Config, errs *ValidationError) {
	if !validRateLimitStrategies[c.RateLimit.Strategy] {
		errs.Addf("rate_limit.strategy is invalid (got %q, valid: sliding_window, token_bucket)",
			c.RateLimit.Strategy)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs.Add("rate_limit.requests_per_second must be >= 0")
	}
	if c.RateLimit.Burst < 0 {
		errs.Add("rate_limit.burst must be >= 0")
	}
}

func validateTransport(c *Config, errs *ValidationError) {
	if c.Transport.MaxTimeoutRetries < 0 {
		errs.Add("transport.max_timeout_retries must be >= 0")
	}
	if c.Transport.MaxRedirects < 0 {
		errs.Add("transport.max_redirects must be >= 0")
	}
	if c.Transport.Breaker.OpenDurationMS < 0 {
		errs.Add("transport.breaker.open_duration_ms must be >= 0")
	}
}

func validateScheduler(c *Config, errs *ValidationError) {
	if !validDisposePolicies[c.Scheduler.DisposePolicy] {
		errs.Addf("scheduler.dispose_policy is invalid (got %q, valid: drain, cancel)",
			c.Scheduler.DisposePolicy)
	}
	if c.Scheduler.CloseTimeoutMS < 0 {
		errs.Add("scheduler.close_timeout_ms must be >= 0")
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[c.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: trace, debug, info, warn, error)",
			c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty)",
			c.Logging.Format)
	}
}
