package contxt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/jwtx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// machineRefreshBuffer refreshes tokens this long before they expire.
	machineRefreshBuffer = 30 * time.Second

	// machineRefreshTimeout bounds one client credentials round trip.
	machineRefreshTimeout = 30 * time.Second

	// machineFallbackTTL applies when neither the response nor the token
	// says when it expires.
	machineFallbackTTL = 5 * time.Minute
)

// MachineAuth authenticates a service with a client id and secret directly
// against the token broker. Tokens are fetched on first use and refreshed
// inside CurrentAPIToken; concurrent callers share one refresh.
type MachineAuth struct {
	tokenConfig clientcredentials.Config
	httpClient  *http.Client
	store       CredentialStore
	logger      *slog.Logger
	now         func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	session Session
}

func newMachineAuth(ctx context.Context, opts AuthOptions, env strategyEnv) (*MachineAuth, error) {
	switch {
	case opts.ClientID == "":
		return nil, &AuthConfigError{SessionType: SessionTypeMachine, Field: "a client id"}
	case opts.ClientSecret == "":
		return nil, &AuthConfigError{SessionType: SessionTypeMachine, Field: "a client secret"}
	}

	broker, err := newTokenBroker(env.audiences, env.httpClient, env.logger)
	if err != nil {
		return nil, err
	}

	a := &MachineAuth{
		tokenConfig: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     broker.baseURL + brokerOAuthPath,
			EndpointParams: url.Values{
				"audiences": exchangeAudiences(env.audiences),
			},
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient: env.httpClient,
		store:      opts.Store,
		logger:     env.logger.With("session_type", SessionTypeMachine),
		now:        env.now,
	}

	session, err := loadSession(ctx, opts.Store)
	if err != nil {
		return nil, err
	}
	if session.APIToken != "" {
		a.session = Session{APIToken: session.APIToken, ExpiresAt: session.ExpiresAt}
	}

	return a, nil
}

// LogIn fetches a token now instead of on first request.
func (a *MachineAuth) LogIn(ctx context.Context) error {
	_, err := a.CurrentAPIToken(ctx, "")
	return err
}

// CurrentAPIToken returns a valid API token, fetching a new one when none is
// held or the held one is within 30 seconds of expiry. At most one fetch is
// in flight; a cancelled caller stops waiting but does not cancel the fetch
// other callers share.
func (a *MachineAuth) CurrentAPIToken(ctx context.Context, _ string) (string, error) {
	if token, ok := a.validToken(); ok {
		return token, nil
	}

	ch := a.group.DoChan("token", func() (any, error) {
		// Another caller may have refreshed between our check and this flight.
		if token, ok := a.validToken(); ok {
			return token, nil
		}
		return a.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *MachineAuth) validToken() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.session.APIToken == "" || a.session.Expired(a.now().Add(machineRefreshBuffer)) {
		return "", false
	}
	return a.session.APIToken, true
}

func (a *MachineAuth) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, machineRefreshTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.tokenConfig.Token(ctx)
	if err != nil {
		exErr := &AuthExchangeError{Op: "client credentials grant", Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			exErr.Err = nil
			exErr.Code = retrieveErr.ErrorCode
			exErr.Description = retrieveErr.ErrorDescription
			if retrieveErr.Response != nil {
				exErr.StatusCode = retrieveErr.Response.StatusCode
			}
		}
		a.logger.WarnContext(ctx, "token refresh failed", "error", exErr)
		return "", exErr
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		if exp, err := jwtx.ExpiresAt(tok.AccessToken); err == nil {
			expiresAt = exp
		} else {
			expiresAt = a.now().Add(machineFallbackTTL)
		}
	}

	session := Session{APIToken: tok.AccessToken, ExpiresAt: expiresAt}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Save(ctx, session); err != nil {
			// The token is still usable in memory.
			a.logger.WarnContext(ctx, "failed to persist machine token", "error", err)
		}
	}

	a.logger.DebugContext(ctx, "refreshed machine token", "expires_at", expiresAt)
	return tok.AccessToken, nil
}

func (a *MachineAuth) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.APIToken != "" && !a.session.Expired(a.now())
}

// LogOut forgets the token. The next CurrentAPIToken fetches a new one.
func (a *MachineAuth) LogOut(ctx context.Context) error {
	a.mu.Lock()
	a.session = Session{}
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
	}
	return nil
}
