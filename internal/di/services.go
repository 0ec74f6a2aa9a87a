package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/do/v2"
	"github.com/samber/lo"
	"golang.org/x/oauth2"

	"github.com/omarluq/vk-async/internal/api"
	"github.com/omarluq/vk-async/internal/auth"
	"github.com/omarluq/vk-async/internal/config"
	"github.com/omarluq/vk-async/internal/fetcher"
	"github.com/omarluq/vk-async/internal/logging"
	"github.com/omarluq/vk-async/internal/ratelimit"
	"github.com/omarluq/vk-async/internal/scheduler"
	"github.com/omarluq/vk-async/internal/transport"
	"github.com/omarluq/vk-async/internal/version"
)

// ConfigService holds the loaded and validated configuration.
type ConfigService struct {
	Config *config.Config
	Path   string
}

// NewConfig loads the configuration from the config path and validates it.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &ConfigService{Config: cfg, Path: path}, nil
}

// LoggerService wraps the zerolog logger for DI.
type LoggerService struct {
	Logger *zerolog.Logger
}

// NewLogger creates the zerolog logger from configuration.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	logger, err := logging.New(cfgSvc.Config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &LoggerService{Logger: &logger}, nil
}

// TransportService holds the HTTP client shared by every account.
type TransportService struct {
	Client *transport.Client
}

// NewTransport creates the HTTP client from configuration.
func NewTransport(i do.Injector) (*TransportService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Config
	logger := do.MustInvoke[*LoggerService](i).Logger

	client := transport.NewClient(transport.Options{
		Logger:            logger,
		UserAgent:         lo.CoalesceOrEmpty(cfg.Transport.UserAgent, version.UserAgent()),
		MaxTimeoutRetries: cfg.Transport.MaxTimeoutRetries,
		MaxRedirects:      cfg.Transport.MaxRedirects,
	})

	return &TransportService{Client: client}, nil
}

// AcquirerService holds the login and OAuth flow runner.
type AcquirerService struct {
	Acquirer *auth.Acquirer
}

// NewAcquirer creates the token acquirer from configuration.
func NewAcquirer(i do.Injector) (*AcquirerService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Config
	logger := do.MustInvoke[*LoggerService](i).Logger
	client := do.MustInvoke[*TransportService](i).Client

	acq := auth.NewAcquirer(client, auth.AcquirerOptions{
		Logger: logger,
		Endpoints: auth.Endpoints{
			LoginURL:     cfg.API.GetLoginURL(),
			AuthorizeURL: cfg.API.GetAuthorizeURL(),
			RedirectURI:  cfg.API.GetRedirectURI(),
		},
		APIVersion: cfg.API.GetVersion(),
		Timeout:    cfg.API.GetTimeout(),
	})

	return &AcquirerService{Acquirer: acq}, nil
}

// FetcherService owns one application per configured account.
// It implements do.Shutdowner so the container disposes every scheduler.
type FetcherService struct {
	Fetcher *fetcher.Fetcher
	cfg     config.SchedulerConfig
}

// NewFetcher builds an application per account and the fetcher over them.
func NewFetcher(i do.Injector) (*FetcherService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Config
	logger := do.MustInvoke[*LoggerService](i).Logger
	client := do.MustInvoke[*TransportService](i).Client
	acq := do.MustInvoke[*AcquirerService](i).Acquirer

	policy, err := scheduler.ParseDisposePolicy(cfg.Scheduler.DisposePolicy)
	if err != nil {
		return nil, err
	}

	apps := make([]*api.Application, 0, len(cfg.Accounts))
	for idx := range cfg.Accounts {
		app, err := newApplication(cfg, &cfg.Accounts[idx], policy, client, acq, logger)
		if err != nil {
			closeAll(apps)
			return nil, err
		}
		apps = append(apps, app)
	}

	f, err := fetcher.New(apps, fetcher.Options{Logger: logger})
	if err != nil {
		closeAll(apps)
		return nil, err
	}

	logger.Debug().Strs("accounts", cfg.AccountNames()).Msg("fetcher ready")

	return &FetcherService{Fetcher: f, cfg: cfg.Scheduler}, nil
}

// Shutdown implements do.Shutdowner.
func (s *FetcherService) Shutdown() error {
	ctx := context.Background()
	if timeout, ok := s.cfg.GetCloseTimeoutOption().Get(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Fetcher.Close(ctx)
}

func newApplication(
	cfg *config.Config,
	account *config.AccountConfig,
	policy scheduler.DisposePolicy,
	client *transport.Client,
	acq auth.TokenAcquirer,
	logger *zerolog.Logger,
) (*api.Application, error) {
	rps := cfg.RateLimit.RequestsPerSecondFor(account)
	limiter, err := ratelimit.New(cfg.RateLimit.GetStrategy(), rps, cfg.RateLimit.Burst)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", account.Name, err)
	}

	keeper := auth.NewKeeper(account.Name, auth.Credentials{
		AppID:    account.AppID,
		Login:    account.Username,
		Password: account.Password,
		Scope:    account.GetScope(),
	}, acq, auth.KeeperOptions{
		Logger: logger,
		Seed:   seedToken(account.AccessToken),
	})

	sched := scheduler.New(limiter, scheduler.Options{
		Logger: logger,
		Policy: policy,
		Name:   account.Name,
	})

	breakerCfg := cfg.Transport.Breaker
	tr := transport.NewBreaker(client, account.Name, transport.BreakerConfig{
		FailureThreshold: breakerCfg.FailureThreshold,
		OpenDuration:     breakerCfg.GetOpenDurationOption().OrEmpty(),
		HalfOpenProbes:   breakerCfg.HalfOpenProbes,
		Disabled:         breakerCfg.Disabled,
	}, logger)

	return api.New(keeper, sched, tr, api.Options{
		Logger:              logger,
		URL:                 cfg.API.GetURL(),
		Version:             cfg.API.GetVersion(),
		Timeout:             cfg.API.GetTimeout(),
		MaxRateLimitRetries: cfg.API.MaxRateLimitRetries,
	}), nil
}

func seedToken(accessToken string) *oauth2.Token {
	if accessToken == "" {
		return nil
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "bearer"}
}

func closeAll(apps []*api.Application) {
	lo.ForEach(apps, func(app *api.Application, _ int) {
		_ = app.Close(context.Background())
	})
}
