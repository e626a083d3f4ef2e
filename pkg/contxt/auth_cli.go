package contxt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/jwtx"
	"github.com/pquerna/otp/totp"
)

// Slot names used by CLIAuth.
const (
	SlotAccessInfo = "accessInfo"
	SlotAPIToken   = "apiToken"
)

// AccessInfo is the provider side of a CLI login, kept in the accessInfo slot.
type AccessInfo struct {
	AccessToken string
	TokenType   string
	Scope       string
	ExpiresIn   int
	ExpiresAt   time.Time
}

// brokerFailureMessage replaces the error text of a failed token exchange
// during a CLI login. The cause stays reachable through errors.As.
const brokerFailureMessage = "An error occurred during authorization"

// CLIAuth logs a user in with a username and password, for command line
// tools. Session data lives in named slots so a partial login (provider
// token but no API token) stays distinguishable from a complete one.
type CLIAuth struct {
	provider  *identityProvider
	broker    *tokenBroker
	audiences []string
	store     CredentialStore
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	slots map[string]any
}

func newCLIAuth(ctx context.Context, opts AuthOptions, env strategyEnv) (*CLIAuth, error) {
	switch {
	case opts.ClientID == "":
		return nil, &AuthConfigError{SessionType: SessionTypeCLI, Field: "a client id"}
	case opts.Domain == "":
		return nil, &AuthConfigError{SessionType: SessionTypeCLI, Field: "a domain"}
	}

	broker, err := newTokenBroker(env.audiences, env.httpClient, env.logger)
	if err != nil {
		return nil, err
	}

	a := &CLIAuth{
		provider: &identityProvider{
			baseURL:    providerURL(opts.Domain),
			clientID:   opts.ClientID,
			audience:   broker.clientID,
			httpClient: env.httpClient,
		},
		broker:    broker,
		audiences: exchangeAudiences(env.audiences),
		store:     opts.Store,
		logger:    env.logger.With("session_type", SessionTypeCLI),
		now:       env.now,
		slots:     make(map[string]any),
	}

	session, err := loadSession(ctx, opts.Store)
	if err != nil {
		return nil, err
	}
	a.hydrate(session)

	return a, nil
}

func (a *CLIAuth) hydrate(session Session) {
	if session.AccessToken == "" || session.APIToken == "" {
		return
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		if exp, err := jwtx.ExpiresAt(session.AccessToken); err == nil {
			expiresAt = exp
		}
	}

	a.slots[SlotAccessInfo] = AccessInfo{AccessToken: session.AccessToken, ExpiresAt: expiresAt}
	a.slots[SlotAPIToken] = session.APIToken
}

// LogIn authenticates with the identity provider and then exchanges the
// provider token for an API token. A *MFARequiredError means the account
// needs a second factor; finish with LogInWithMFA.
func (a *CLIAuth) LogIn(ctx context.Context, username, password string) error {
	if username == "" {
		return &ValidationError{Field: "username"}
	}
	if password == "" {
		return &ValidationError{Field: "password"}
	}

	tok, err := a.provider.passwordGrant(ctx, username, password)
	if err != nil {
		return err
	}

	return a.completeLogin(ctx, tok)
}

// LogInWithMFA finishes a login interrupted by challenge using a one-time
// password from the user's authenticator.
func (a *CLIAuth) LogInWithMFA(ctx context.Context, challenge *MFARequiredError, otp string) error {
	if challenge == nil || challenge.MFAToken == "" {
		return &ValidationError{Field: "mfa token"}
	}
	if otp == "" {
		return &ValidationError{Field: "one-time password"}
	}

	tok, err := a.provider.mfaOTPGrant(ctx, challenge.MFAToken, otp)
	if err != nil {
		return err
	}

	return a.completeLogin(ctx, tok)
}

// GenerateOTP derives the current TOTP code from a base32 secret, for
// unattended logins of accounts enrolled in MFA.
func (a *CLIAuth) GenerateOTP(secret string) (string, error) {
	code, err := totp.GenerateCode(secret, a.now())
	if err != nil {
		return "", &ValidationError{Field: "totp secret", Message: err.Error()}
	}
	return code, nil
}

func (a *CLIAuth) completeLogin(ctx context.Context, tok *providerToken) error {
	info := AccessInfo{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       tok.Scope,
		ExpiresIn:   tok.ExpiresIn,
		ExpiresAt:   a.now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	// The previous API token must not outlive a failed re-login.
	a.mu.Lock()
	a.slots[SlotAccessInfo] = info
	delete(a.slots, SlotAPIToken)
	a.mu.Unlock()

	apiToken, err := a.getAPIToken(ctx, tok.AccessToken)
	if err != nil {
		return err
	}
	a.setSlot(SlotAPIToken, apiToken)

	if a.store != nil {
		session := Session{AccessToken: info.AccessToken, APIToken: apiToken, ExpiresAt: info.ExpiresAt}
		if err := a.store.Save(ctx, session); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "logged in", "expires_at", info.ExpiresAt)
	return nil
}

// getAPIToken always reports broker failures to the caller.
func (a *CLIAuth) getAPIToken(ctx context.Context, accessToken string) (string, error) {
	apiToken, err := a.broker.exchange(ctx, accessToken, a.audiences)
	if err != nil {
		a.logger.WarnContext(ctx, "token exchange failed", "error", err)
		return "", &AuthExchangeError{Op: "token exchange", Message: brokerFailureMessage, Err: err}
	}
	return apiToken, nil
}

// Slot returns the raw value stored under name.
func (a *CLIAuth) Slot(name string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.slots[name]
	return v, ok
}

func (a *CLIAuth) setSlot(name string, v any) {
	a.mu.Lock()
	a.slots[name] = v
	a.mu.Unlock()
}

func (a *CLIAuth) CurrentAPIToken(_ context.Context, _ string) (string, error) {
	v, ok := a.Slot(SlotAPIToken)
	if !ok {
		return "", &NoTokenError{Kind: TokenKindAPI}
	}
	return v.(string), nil
}

func (a *CLIAuth) CurrentAccessToken(_ context.Context) (string, error) {
	v, ok := a.Slot(SlotAccessInfo)
	if !ok {
		return "", &NoTokenError{Kind: TokenKindAccess}
	}
	return v.(AccessInfo).AccessToken, nil
}

// ExpiresAt returns the expiry of the provider token, or the zero time.
func (a *CLIAuth) ExpiresAt() time.Time {
	v, ok := a.Slot(SlotAccessInfo)
	if !ok {
		return time.Time{}
	}
	return v.(AccessInfo).ExpiresAt
}

func (a *CLIAuth) IsAuthenticated() bool {
	if _, ok := a.Slot(SlotAPIToken); !ok {
		return false
	}
	expiresAt := a.ExpiresAt()
	return expiresAt.After(a.now())
}

// LogOut empties the slots, and the store when one is configured.
func (a *CLIAuth) LogOut(ctx context.Context) error {
	a.mu.Lock()
	clear(a.slots)
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
	}
	return nil
}
