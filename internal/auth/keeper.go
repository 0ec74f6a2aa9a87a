package auth

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// KeeperOptions configures a Keeper.
type KeeperOptions struct {
	// Logger receives token lifecycle events. Nil disables logging.
	Logger *zerolog.Logger

	// Seed is a pre-issued token used until it is dropped or expires.
	Seed *oauth2.Token
}

// Keeper holds the single live token of one account.
//
// EnsureToken returns the held token while it is valid and otherwise runs the
// acquirer. Acquisitions are serialized: a caller arriving during an in-flight
// acquisition waits for it and then observes its token.
type Keeper struct {
	acquirer TokenAcquirer
	token    atomic.Pointer[oauth2.Token]
	sem      chan struct{}
	logger   zerolog.Logger
	account  string
	creds    Credentials
}

// Verify Keeper implements oauth2.TokenSource at compile time.
var _ oauth2.TokenSource = (*Keeper)(nil)

// NewKeeper creates a Keeper for account.
func NewKeeper(account string, creds Credentials, acquirer TokenAcquirer, opts KeeperOptions) *Keeper {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("account", account).Logger()
	}

	k := &Keeper{
		acquirer: acquirer,
		sem:      make(chan struct{}, 1),
		logger:   logger,
		account:  account,
		creds:    creds,
	}
	if opts.Seed != nil && opts.Seed.AccessToken != "" {
		k.token.Store(opts.Seed)
	}
	return k
}

// EnsureToken returns a valid token, acquiring one if needed.
// Acquisition failures are returned to every waiting caller and not cached.
func (k *Keeper) EnsureToken(ctx context.Context) (*oauth2.Token, error) {
	if tok := k.token.Load(); tok.Valid() {
		return tok, nil
	}

	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-k.sem }()

	// Another caller may have finished acquiring while we waited.
	if tok := k.token.Load(); tok.Valid() {
		return tok, nil
	}

	if !k.creds.CanLogin() {
		return nil, ErrNoCredentials
	}

	k.logger.Info().Msg("acquiring access token")

	tok, err := k.acquirer.Acquire(ctx, k.account, k.creds)
	if err != nil {
		k.logger.Warn().Err(err).Msg("access token acquisition failed")
		return nil, err
	}

	k.token.Store(tok)
	return tok, nil
}

// Token implements oauth2.TokenSource.
func (k *Keeper) Token() (*oauth2.Token, error) {
	return k.EnsureToken(context.Background())
}

// Current returns the held token without acquiring. It may be nil or expired.
func (k *Keeper) Current() *oauth2.Token {
	return k.token.Load()
}

// Drop clears the held token so the next EnsureToken acquires a new one.
func (k *Keeper) Drop() {
	if k.token.Swap(nil) != nil {
		k.logger.Info().Msg("access token dropped")
	}
}

// Invalidate drops tok only if it is still the held token.
// A token acquired concurrently by another caller is kept.
func (k *Keeper) Invalidate(tok *oauth2.Token) bool {
	if tok == nil {
		return false
	}
	if k.token.CompareAndSwap(tok, nil) {
		k.logger.Info().Msg("access token dropped")
		return true
	}
	return false
}

// Account returns the account name.
func (k *Keeper) Account() string {
	return k.account
}
