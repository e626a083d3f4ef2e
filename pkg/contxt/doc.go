/*
Package contxt is a client SDK for the Contxt platform APIs.

# Overview

Every Contxt API is an audience: a named service with a host and the client
id the token broker knows it by. New resolves the audience map for an
environment, builds one session strategy, and binds a RequestClient to each
audience. Feature modules (Facilities, Assets, Health, Coordinator, Nionic,
Bus) only ever talk to their RequestClient.

	sdk, err := contxt.New(ctx, contxt.Options{
		Env:         contxt.EnvStaging,
		SessionType: contxt.SessionTypeMachine,
		Auth: contxt.AuthOptions{
			ClientID:     os.Getenv("CONTXT_CLIENT_ID"),
			ClientSecret: os.Getenv("CONTXT_CLIENT_SECRET"),
		},
	})
	if err != nil {
		return err
	}

	facilities, err := sdk.Facilities.List(ctx)

# Session Strategies

All strategies end with the same token broker exchange: a provider token
(or client credentials) is traded for one API token covering every
configured audience except the broker itself.

Browser (SessionTypeBrowser) sends the user to the identity provider and
completes in BrowserAuth.HandleCallback with the URL fragment the provider
redirects back with:

	err := sdk.Browser().LogIn(ctx, "/dashboard")
	// ... later, on the redirect URI
	err = sdk.Browser().HandleCallback(ctx, fragment)

CLI (SessionTypeCLI) logs in with a username and password:

	err := sdk.CLI().LogIn(ctx, username, password)
	var mfaErr *contxt.MFARequiredError
	if errors.As(err, &mfaErr) {
		err = sdk.CLI().LogInWithMFA(ctx, mfaErr, otp)
	}

Machine (SessionTypeMachine) needs no login call. Tokens are fetched and
refreshed on demand, and concurrent requests share a single refresh.

Only the machine strategy refreshes tokens. Browser and CLI sessions report
IsAuthenticated() == false once expired and must log in again.

# Credential Stores

A CredentialStore keeps the session across restarts. MemoryStore is built
in; the stores directory has SQLite, Redis and file backed implementations.

# Errors

Construction problems are *ConfigError or *AuthConfigError. Requests made
without a token fail with *NoTokenError, failed logins with
*AuthExchangeError or *AuthParseError, rejected arguments with
*ValidationError, and non-2xx responses with *APIError.
*/
package contxt
