package contxt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Session strategy discriminators accepted by Options.SessionType.
const (
	SessionTypeBrowser = "browser"
	SessionTypeCLI     = "cli"
	SessionTypeMachine = "machine"
)

// SessionStrategy is the capability every authentication flow provides to
// the request layer. Logging in differs per flow and lives on the concrete
// types: BrowserAuth, CLIAuth and MachineAuth.
type SessionStrategy interface {
	// CurrentAPIToken returns the API token to send to audience. API tokens
	// cover every configured audience, so the same token is usually returned
	// for all of them.
	CurrentAPIToken(ctx context.Context, audience string) (string, error)

	// IsAuthenticated reports whether the strategy holds an unexpired session.
	IsAuthenticated() bool

	// LogOut drops the in-memory and persisted session.
	LogOut(ctx context.Context) error
}

// AuthOptions configures the session strategy. Which fields are required
// depends on the session type.
type AuthOptions struct {
	// ClientID is the identity provider application (browser, cli) or the
	// machine client registered with the token broker (machine).
	ClientID string

	// ClientSecret authenticates a machine client.
	ClientSecret string

	// Domain is the identity provider domain, e.g. "ndustrial.auth0.com".
	// Browser and CLI sessions require it.
	Domain string

	// RedirectURI is where the identity provider returns the user after a
	// browser login.
	RedirectURI string

	// Scope requested from the identity provider. Defaults to
	// "openid profile email".
	Scope string

	// Navigate sends the user agent to the identity provider. Required for
	// browser sessions.
	Navigate func(authorizeURL string)

	// OnRedirect is called with an application path after a browser login
	// completes or fails, and after logout.
	OnRedirect func(path string)

	// Store persists the session. Browser sessions default to a MemoryStore;
	// CLI and machine sessions only persist when a store is given.
	Store CredentialStore
}

// strategyEnv carries what every strategy constructor needs from the SDK.
type strategyEnv struct {
	audiences  map[string]Audience
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func newSessionStrategy(ctx context.Context, sessionType string, opts AuthOptions, env strategyEnv) (SessionStrategy, error) {
	switch sessionType {
	case SessionTypeBrowser:
		return newBrowserAuth(ctx, opts, env)
	case SessionTypeCLI:
		return newCLIAuth(ctx, opts, env)
	case SessionTypeMachine:
		return newMachineAuth(ctx, opts, env)
	default:
		return nil, &ConfigError{
			Message: fmt.Sprintf("unknown session type %q, expected one of %q, %q or %q",
				sessionType, SessionTypeBrowser, SessionTypeCLI, SessionTypeMachine),
			Err: ErrUnknownSessionType,
		}
	}
}

// loadSession reads the persisted session, treating a nil store as empty.
func loadSession(ctx context.Context, store CredentialStore) (Session, error) {
	if store == nil {
		return Session{}, nil
	}
	session, err := store.Load(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}
