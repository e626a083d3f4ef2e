package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/jwtx"
	"github.com/ndustrialio/contxt-go/pkg/slogx"
)

const (
	callbackShutdownTimeout = 5 * time.Second
	browserLoginTimeout     = 5 * time.Minute
)

func (a *App) runLogin(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	browser := fs.Bool("browser", false, "log in through the browser")
	username := fs.String("username", "", "account email")
	password := fs.String("password", "", "account password (default $CONTXT_PASSWORD, or prompt)")
	otp := fs.String("otp", "", "one-time password for accounts with multifactor authentication")
	totpSecret := fs.String("totp-secret", "", "TOTP seed used to generate the one-time password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, a.cfg, namespaceUser)
	if err != nil {
		return err
	}
	defer closeStore()

	if *browser {
		return a.browserLogin(ctx, store)
	}

	sdk, err := a.newSDK(ctx, contxt.SessionTypeCLI, a.userAuth(store))
	if err != nil {
		return err
	}
	defer sdk.Close()
	auth := sdk.CLI()

	if *username == "" {
		if *username, err = a.prompt("Email: "); err != nil {
			return err
		}
	}
	if *password == "" {
		*password = os.Getenv("CONTXT_PASSWORD")
	}
	if *password == "" {
		if *password, err = a.prompt("Password: "); err != nil {
			return err
		}
	}

	err = auth.LogIn(ctx, *username, *password)

	var challenge *contxt.MFARequiredError
	if errors.As(err, &challenge) {
		code := *otp
		if code == "" && *totpSecret != "" {
			if code, err = auth.GenerateOTP(*totpSecret); err != nil {
				return err
			}
		}
		if code == "" {
			if code, err = a.prompt("One-time password: "); err != nil {
				return err
			}
		}
		err = auth.LogInWithMFA(ctx, challenge, code)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Logged in until %s\n", auth.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

// browserLogin runs the redirect flow with a local server receiving the
// callback.
func (a *App) browserLogin(ctx context.Context, store contxt.CredentialStore) error {
	logger := slogx.FromContext(ctx, a.logger)

	redirected := make(chan string, 1)
	opts := a.userAuth(store)
	opts.RedirectURI = a.cfg.RedirectURI()
	opts.Navigate = func(authorizeURL string) {
		fmt.Fprintf(a.stdout, "Open this URL in your browser to log in:\n\n  %s\n\n", authorizeURL)
	}
	opts.OnRedirect = func(path string) {
		select {
		case redirected <- path:
		default:
		}
	}

	sdk, err := a.newSDK(ctx, contxt.SessionTypeBrowser, opts)
	if err != nil {
		return err
	}
	defer sdk.Close()
	auth := sdk.Browser()

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", a.cfg.CallbackPort))
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	callbacks := newCallbackServer(auth, logger)
	srv := &http.Server{
		Handler:           callbacks.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback server shutdown failed", "error", err)
		}
	}()

	if err := auth.LogIn(ctx, "/"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, browserLoginTimeout)
	defer cancel()

	select {
	case err := <-callbacks.results:
		if err != nil {
			return err
		}
	case err := <-serverErrors:
		return fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the browser login: %w", ctx.Err())
	}

	<-redirected
	fmt.Fprintf(a.stdout, "Logged in until %s\n", auth.Session().ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *App) runToken(ctx context.Context, args []string) error {
	fs := a.flagSet("token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, a.cfg, namespaceMachine)
	if err != nil {
		return err
	}
	defer closeStore()

	sdk, err := a.newSDK(ctx, contxt.SessionTypeMachine, a.machineAuth(store))
	if err != nil {
		return err
	}
	defer sdk.Close()

	token, err := sdk.Machine().CurrentAPIToken(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, token)
	return nil
}

func (a *App) runFacilities(ctx context.Context, args []string) error {
	fs := a.flagSet("facilities")
	organizationID := fs.String("org", "", "only list facilities of this organization")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sdk, closeSDK, err := a.apiSDK(ctx)
	if err != nil {
		return err
	}
	defer closeSDK()

	var facilities []contxt.Facility
	if *organizationID != "" {
		facilities, err = sdk.Facilities.ListByOrganization(ctx, *organizationID)
	} else {
		facilities, err = sdk.Facilities.List(ctx)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tORGANIZATION\tTIMEZONE")
	for _, f := range facilities {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.ID, f.Name, f.OrganizationID, f.Timezone)
	}
	return tw.Flush()
}

// apiSDK returns an SDK for API commands: a machine session when a client
// secret is configured, otherwise the stored user session.
func (a *App) apiSDK(ctx context.Context) (*contxt.SDK, func(), error) {
	sessionType, namespace := contxt.SessionTypeCLI, namespaceUser
	if a.cfg.ClientSecret != "" {
		sessionType, namespace = contxt.SessionTypeMachine, namespaceMachine
	}

	store, closeStore, err := openStore(ctx, a.cfg, namespace)
	if err != nil {
		return nil, nil, err
	}

	auth := a.userAuth(store)
	if sessionType == contxt.SessionTypeMachine {
		auth = a.machineAuth(store)
	}

	sdk, err := a.newSDK(ctx, sessionType, auth)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	if sessionType == contxt.SessionTypeCLI && !sdk.Auth.IsAuthenticated() {
		_ = sdk.Close()
		_ = closeStore()
		return nil, nil, errors.New("not logged in, run contxt login first")
	}

	return sdk, func() {
		_ = sdk.Close()
		_ = closeStore()
	}, nil
}

func (a *App) runStatus(ctx context.Context, args []string) error {
	fs := a.flagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Environment: %s\n", a.cfg.Env)
	fmt.Fprintf(a.stdout, "Store:       %s\n", a.cfg.Store)

	for _, namespace := range []string{namespaceUser, namespaceMachine} {
		store, closeStore, err := openStore(ctx, a.cfg, namespace)
		if err != nil {
			return err
		}
		session, err := store.Load(ctx)
		_ = closeStore()
		if err != nil {
			return err
		}

		fmt.Fprintf(a.stdout, "\n[%s]\n", namespace)
		a.printSession(session)
	}
	return nil
}

func (a *App) printSession(session contxt.Session) {
	if session.APIToken == "" {
		fmt.Fprintln(a.stdout, "  not logged in")
		return
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		if exp, err := jwtx.ExpiresAt(session.APIToken); err == nil {
			expiresAt = exp
		}
	}

	state := "valid"
	if !expiresAt.After(time.Now()) {
		state = "expired"
	}
	fmt.Fprintf(a.stdout, "  session:   %s until %s\n", state, expiresAt.Local().Format(time.RFC1123))

	claims, err := jwtx.Inspect(session.APIToken)
	if err != nil {
		return
	}
	if claims.Subject != "" {
		fmt.Fprintf(a.stdout, "  subject:   %s\n", claims.Subject)
	}
	if len(claims.Audience) > 0 {
		fmt.Fprintf(a.stdout, "  audiences: %s\n", strings.Join(claims.Audience, ", "))
	}
}

func (a *App) runLogout(ctx context.Context, args []string) error {
	fs := a.flagSet("logout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, namespace := range []string{namespaceUser, namespaceMachine} {
		if err := a.logout(ctx, namespace); err != nil {
			return err
		}
	}
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

// logout drops the session of namespace through its strategy, or clears the
// store directly when the strategy cannot be configured.
func (a *App) logout(ctx context.Context, namespace string) error {
	store, closeStore, err := openStore(ctx, a.cfg, namespace)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionType, auth := contxt.SessionTypeCLI, a.userAuth(store)
	if namespace == namespaceMachine {
		sessionType, auth = contxt.SessionTypeMachine, a.machineAuth(store)
	}

	sdk, err := a.newSDK(ctx, sessionType, auth)
	if err != nil {
		var cfgErr *contxt.AuthConfigError
		if errors.As(err, &cfgErr) {
			return store.Clear(ctx)
		}
		return err
	}
	defer sdk.Close()

	return sdk.Auth.LogOut(ctx)
}
