package contxt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/cryptox"
	"golang.org/x/oauth2"
)

// BrowserState is a step of the redirect login flow.
type BrowserState int

const (
	StateUnauthenticated BrowserState = iota
	StateAwaitingProviderRedirect
	StateAwaitingCallback
	StateAuthenticated
)

func (s BrowserState) String() string {
	switch s {
	case StateAwaitingProviderRedirect:
		return "awaiting_provider_redirect"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// BrowserAuth logs a user in through the identity provider's hosted login
// page using the implicit flow, then exchanges the provider access token for
// an API token at the token broker.
//
// Tokens are not refreshed automatically. Once the session expires the
// application is expected to call LogIn again.
type BrowserAuth struct {
	oauth      oauth2.Config
	audience   string
	audiences  []string
	broker     *tokenBroker
	store      CredentialStore
	navigate   func(string)
	onRedirect func(string)
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	session Session
	phase   BrowserState
}

func newBrowserAuth(ctx context.Context, opts AuthOptions, env strategyEnv) (*BrowserAuth, error) {
	switch {
	case opts.ClientID == "":
		return nil, &AuthConfigError{SessionType: SessionTypeBrowser, Field: "a client id"}
	case opts.Domain == "":
		return nil, &AuthConfigError{SessionType: SessionTypeBrowser, Field: "a domain"}
	case opts.RedirectURI == "":
		return nil, &AuthConfigError{SessionType: SessionTypeBrowser, Field: "a redirect uri"}
	case opts.Navigate == nil:
		return nil, &AuthConfigError{SessionType: SessionTypeBrowser, Field: "a navigate callback"}
	}

	broker, err := newTokenBroker(env.audiences, env.httpClient, env.logger)
	if err != nil {
		return nil, err
	}

	scope := opts.Scope
	if scope == "" {
		scope = defaultScope
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	onRedirect := opts.OnRedirect
	if onRedirect == nil {
		onRedirect = func(string) {}
	}

	base := providerURL(opts.Domain)
	a := &BrowserAuth{
		oauth: oauth2.Config{
			ClientID: opts.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/authorize",
				TokenURL: base + "/oauth/token",
			},
			RedirectURL: opts.RedirectURI,
			Scopes:      strings.Fields(scope),
		},
		audience:   broker.clientID,
		audiences:  exchangeAudiences(env.audiences),
		broker:     broker,
		store:      store,
		navigate:   opts.Navigate,
		onRedirect: onRedirect,
		logger:     env.logger.With("session_type", SessionTypeBrowser),
		now:        env.now,
	}

	session, err := loadSession(ctx, store)
	if err != nil {
		return nil, err
	}
	a.session = session
	switch {
	case a.isAuthenticatedLocked():
		a.phase = StateAuthenticated
	case session.State != "":
		// A login was started before the process (or page) reloaded.
		a.phase = StateAwaitingCallback
	}

	return a, nil
}

// LogIn stashes returnPath, then sends the user agent to the identity
// provider. The login finishes in HandleCallback. An empty returnPath means "/".
func (a *BrowserAuth) LogIn(ctx context.Context, returnPath string) error {
	if a.oauth.ClientID == "" {
		return &AuthConfigError{SessionType: SessionTypeBrowser, Field: "a client id"}
	}
	if returnPath == "" {
		returnPath = "/"
	}

	state, err := cryptox.NewState()
	if err != nil {
		return err
	}
	nonce, err := cryptox.NewNonce()
	if err != nil {
		return err
	}

	a.mu.Lock()
	// Stale tokens are not carried into the stash. Stores drop expired
	// sessions, which would lose the state nonce with them.
	if !a.isAuthenticatedLocked() {
		a.session = Session{}
	}
	a.phase = StateAwaitingProviderRedirect
	a.session.RedirectPath = returnPath
	a.session.State = state
	stash := a.session
	a.mu.Unlock()

	if err := a.store.Save(ctx, stash); err != nil {
		a.setPhase(StateUnauthenticated)
		return fmt.Errorf("failed to persist login state: %w", err)
	}

	authorizeURL := a.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("audience", a.audience),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	a.setPhase(StateAwaitingCallback)
	a.logger.InfoContext(ctx, "redirecting to identity provider", "return_path", returnPath)
	a.navigate(authorizeURL)
	return nil
}

// HandleCallback completes a login from the fragment the identity provider
// appended to the redirect URI. On success the session is persisted and
// OnRedirect receives the path stashed by LogIn. On failure OnRedirect
// receives "/" and the error is returned.
func (a *BrowserAuth) HandleCallback(ctx context.Context, fragment string) error {
	a.mu.RLock()
	stash := a.session
	a.mu.RUnlock()

	if err := a.completeLogin(ctx, fragment, stash.State); err != nil {
		a.mu.Lock()
		a.phase = StateUnauthenticated
		a.session.RedirectPath = ""
		a.session.State = ""
		cleared := a.session
		a.mu.Unlock()

		if saveErr := a.store.Save(ctx, cleared); saveErr != nil {
			a.logger.WarnContext(ctx, "failed to clear login state", "error", saveErr)
		}
		a.logger.WarnContext(ctx, "login callback failed", "error", err)
		a.onRedirect("/")
		return err
	}

	path := stash.RedirectPath
	if path == "" {
		path = "/"
	}
	a.onRedirect(path)
	return nil
}

func (a *BrowserAuth) completeLogin(ctx context.Context, fragment, expectedState string) error {
	res, err := parseCallbackFragment(fragment)
	if err != nil {
		return err
	}
	if res.State != expectedState {
		return &AuthParseError{Reason: "state does not match the login in progress"}
	}

	expiresAt := a.now().Add(time.Duration(res.ExpiresIn) * time.Second)

	apiToken, err := a.broker.exchange(ctx, res.AccessToken, a.audiences)
	if err != nil {
		return err
	}

	session := Session{
		AccessToken: res.AccessToken,
		APIToken:    apiToken,
		ExpiresAt:   expiresAt,
	}
	if err := a.store.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.phase = StateAuthenticated
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "logged in", "expires_at", expiresAt)
	return nil
}

// CurrentAPIToken returns the stored API token. It does not check expiry.
func (a *BrowserAuth) CurrentAPIToken(_ context.Context, _ string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.session.APIToken == "" {
		return "", &NoTokenError{Kind: TokenKindAPI}
	}
	return a.session.APIToken, nil
}

// CurrentAccessToken returns the stored provider access token.
func (a *BrowserAuth) CurrentAccessToken(_ context.Context) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.session.AccessToken == "" {
		return "", &NoTokenError{Kind: TokenKindAccess}
	}
	return a.session.AccessToken, nil
}

func (a *BrowserAuth) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isAuthenticatedLocked()
}

func (a *BrowserAuth) isAuthenticatedLocked() bool {
	return a.session.AccessToken != "" &&
		a.session.APIToken != "" &&
		!a.session.Expired(a.now())
}

// State reports the login flow step. An authenticated session that has
// since expired reports StateUnauthenticated.
func (a *BrowserAuth) State() BrowserState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.phase == StateAuthenticated && !a.isAuthenticatedLocked() {
		return StateUnauthenticated
	}
	return a.phase
}

// Session returns a copy of the current session.
func (a *BrowserAuth) Session() Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// LogOut clears the session everywhere and redirects to "/".
func (a *BrowserAuth) LogOut(ctx context.Context) error {
	a.mu.Lock()
	a.session = Session{}
	a.phase = StateUnauthenticated
	a.mu.Unlock()

	err := a.store.Clear(ctx)
	a.onRedirect("/")
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (a *BrowserAuth) setPhase(phase BrowserState) {
	a.mu.Lock()
	a.phase = phase
	a.mu.Unlock()
}
