// Package config provides configuration loading, parsing, and validation for vk-async.
package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Log level constants.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Defaults applied when a field is left empty.
const (
	DefaultAPIURL            = "https://api.vk.com/method/"
	DefaultAPIVersion        = "5.28"
	DefaultLoginURL          = "https://m.vk.com"
	DefaultAuthorizeURL      = "https://oauth.vk.com/authorize"
	DefaultRedirectURI       = "https://oauth.vk.com/blank.html"
	DefaultScope             = "offline"
	DefaultTimeout           = 20 * time.Second
	DefaultRequestsPerSecond = 3
	DefaultRateLimitStrategy = "sliding_window"
	DefaultDisposePolicy     = "drain"
)

// Config represents the complete vk-async configuration.
type Config struct {
	Accounts  []AccountConfig `yaml:"accounts" toml:"accounts"`
	API       APIConfig       `yaml:"api" toml:"api"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
}

// APIConfig holds the endpoints and call defaults shared by every account.
type APIConfig struct {
	URL          string `yaml:"url" toml:"url"`
	Version      string `yaml:"version" toml:"version"`
	LoginURL     string `yaml:"login_url" toml:"login_url"`
	AuthorizeURL string `yaml:"authorize_url" toml:"authorize_url"`
	RedirectURI  string `yaml:"redirect_uri" toml:"redirect_uri"`

	// TimeoutMS is the per-call timeout in milliseconds. Default: 20000.
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms"`

	// MaxRateLimitRetries caps retries of "too many requests" errors. 0 retries forever.
	MaxRateLimitRetries int `yaml:"max_rate_limit_retries" toml:"max_rate_limit_retries"`
}

// GetURL returns the method endpoint base with default fallback.
// The result always ends with a slash.
func (a *APIConfig) GetURL() string {
	u := lo.Ternary(a.URL == "", DefaultAPIURL, a.URL)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// GetVersion returns the API version with default fallback.
func (a *APIConfig) GetVersion() string {
	return lo.Ternary(a.Version == "", DefaultAPIVersion, a.Version)
}

// GetLoginURL returns the login page URL with default fallback.
func (a *APIConfig) GetLoginURL() string {
	return lo.Ternary(a.LoginURL == "", DefaultLoginURL, a.LoginURL)
}

// GetAuthorizeURL returns the OAuth authorize endpoint with default fallback.
func (a *APIConfig) GetAuthorizeURL() string {
	return lo.Ternary(a.AuthorizeURL == "", DefaultAuthorizeURL, a.AuthorizeURL)
}

// GetRedirectURI returns the OAuth redirect URI with default fallback.
func (a *APIConfig) GetRedirectURI() string {
	return lo.Ternary(a.RedirectURI == "", DefaultRedirectURI, a.RedirectURI)
}

// GetTimeout returns the per-call timeout with default fallback.
func (a *APIConfig) GetTimeout() time.Duration {
	return a.GetTimeoutOption().OrElse(DefaultTimeout)
}

// GetTimeoutOption returns the timeout as an Option.
// Returns None if TimeoutMS is zero (use default).
func (a *APIConfig) GetTimeoutOption() mo.Option[time.Duration] {
	if a.TimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(a.TimeoutMS) * time.Millisecond)
}

// AccountConfig describes one VK account.
type AccountConfig struct {
	Name     string `yaml:"name" toml:"name"`
	AppID    string `yaml:"app_id" toml:"app_id"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"` // supports ${ENV_VAR}
	Scope    string `yaml:"scope" toml:"scope"`

	// AccessToken seeds the account with an existing token.
	AccessToken string `yaml:"access_token" toml:"access_token"`

	// RequestsPerSecond overrides rate_limit.requests_per_second for this account.
	RequestsPerSecond int `yaml:"requests_per_second" toml:"requests_per_second"`
}

// GetScope returns the OAuth scope with default fallback.
func (a *AccountConfig) GetScope() string {
	return lo.Ternary(a.Scope == "", DefaultScope, a.Scope)
}

// CanLogin reports whether the account carries enough to run the login flow.
func (a *AccountConfig) CanLogin() bool {
	return a.AppID != "" && a.Username != "" && a.Password != ""
}

// GetRequestsPerSecondOption returns the per-account rate as an Option.
func (a *AccountConfig) GetRequestsPerSecondOption() mo.Option[int] {
	if a.RequestsPerSecond <= 0 {
		return mo.None[int]()
	}
	return mo.Some(a.RequestsPerSecond)
}

// RateLimitConfig selects the admission strategy for every account.
type RateLimitConfig struct {
	// Strategy is sliding_window (default) or token_bucket.
	Strategy          string `yaml:"strategy" toml:"strategy"`
	RequestsPerSecond int    `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int    `yaml:"burst" toml:"burst"`
}

// GetStrategy returns the rate limit strategy with default fallback.
func (r *RateLimitConfig) GetStrategy() string {
	return lo.Ternary(r.Strategy == "", DefaultRateLimitStrategy, r.Strategy)
}

// RequestsPerSecondFor resolves the effective rate of an account.
func (r *RateLimitConfig) RequestsPerSecondFor(account *AccountConfig) int {
	return account.GetRequestsPerSecondOption().OrElse(
		lo.Ternary(r.RequestsPerSecond > 0, r.RequestsPerSecond, DefaultRequestsPerSecond))
}

// TransportConfig controls the HTTP layer.
type TransportConfig struct {
	UserAgent string `yaml:"user_agent" toml:"user_agent"`

	// MaxTimeoutRetries caps retries of timed out requests. 0 retries forever.
	MaxTimeoutRetries int `yaml:"max_timeout_retries" toml:"max_timeout_retries"`
	MaxRedirects      int `yaml:"max_redirects" toml:"max_redirects"`

	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`
}

// BreakerConfig configures the per-account circuit breaker on API calls.
type BreakerConfig struct {
	FailureThreshold int  `yaml:"failure_threshold" toml:"failure_threshold"`
	OpenDurationMS   int  `yaml:"open_duration_ms" toml:"open_duration_ms"`
	HalfOpenProbes   int  `yaml:"half_open_probes" toml:"half_open_probes"`
	Disabled         bool `yaml:"disabled" toml:"disabled"`
}

// GetOpenDurationOption returns the open state duration as an Option.
func (b *BreakerConfig) GetOpenDurationOption() mo.Option[time.Duration] {
	if b.OpenDurationMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(b.OpenDurationMS) * time.Millisecond)
}

// SchedulerConfig controls how pending calls are disposed on shutdown.
type SchedulerConfig struct {
	// DisposePolicy is drain (default) or cancel.
	DisposePolicy string `yaml:"dispose_policy" toml:"dispose_policy"`

	// CloseTimeoutMS bounds a drain. 0 waits for the queue to empty.
	CloseTimeoutMS int `yaml:"close_timeout_ms" toml:"close_timeout_ms"`
}

// GetDisposePolicy returns the dispose policy with default fallback.
func (s *SchedulerConfig) GetDisposePolicy() string {
	return lo.Ternary(s.DisposePolicy == "", DefaultDisposePolicy, s.DisposePolicy)
}

// GetCloseTimeoutOption returns the close timeout as an Option.
func (s *SchedulerConfig) GetCloseTimeoutOption() mo.Option[time.Duration] {
	if s.CloseTimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(s.CloseTimeoutMS) * time.Millisecond)
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console
	Output string `yaml:"output" toml:"output"` // stdout, stderr, or file path
	Pretty bool   `yaml:"pretty" toml:"pretty"` // enable colored console output
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Account returns the account with the given name.
func (c *Config) Account(name string) (AccountConfig, bool) {
	return lo.Find(c.Accounts, func(a AccountConfig) bool { return a.Name == name })
}

// AccountNames lists configured account names in file order.
func (c *Config) AccountNames() []string {
	return lo.Map(c.Accounts, func(a AccountConfig, _ int) string { return a.Name })
}
