package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/stretchr/testify/require"
)

// newFakeContxt plays the identity provider, the token broker and the
// facilities API.
func newFakeContxt(t *testing.T) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case r.PostForm.Get("username") == "mfa@example.com" && r.PostForm.Get("otp") == "":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "mfa_required", "mfa_token": "mfa-token"})
		case r.PostForm.Get("otp") != "" && r.PostForm.Get("otp") != "123456":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_grant"})
		case r.PostForm.Get("otp") == "" && r.PostForm.Get("password") != "hunter2":
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid_grant", "error_description": "Wrong email or password."})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "provider-token", "token_type": "Bearer", "expires_in": 3600})
		}
	})
	mux.HandleFunc("POST /v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "user-api-token"})
	})
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("client_secret") != "machine-secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "machine-api-token", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /v1/facilities", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.Header.Get("Authorization"), "-api-token") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, []contxt.Facility{
			{ID: 7, Name: "Plant 7", OrganizationID: "org-1", Timezone: "America/New_York"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	*App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestApp(t *testing.T, srv *httptest.Server, cfg Config, stdin string) *testApp {
	t.Helper()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	app := New(cfg, strings.NewReader(stdin), stdout, stderr)
	app.audiences = contxt.AudienceTable{
		contxt.AudienceContxtAuth: {contxt.EnvProduction: {ClientID: "broker", Host: srv.URL}},
		contxt.AudienceFacilities: {contxt.EnvProduction: {ClientID: "facilities", Host: srv.URL}},
	}
	app.httpClient = srv.Client()
	return &testApp{App: app, stdout: stdout, stderr: stderr}
}

func testConfig(t *testing.T, srv *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.ClientID = "cli-client"
	cfg.AuthDomain = srv.URL
	cfg.StorePath = filepath.Join(t.TempDir(), "session.json")
	cfg.LogLevel = "error"
	return cfg
}

func (a *testApp) run(t *testing.T, args ...string) error {
	t.Helper()
	a.stdout.Reset()
	return a.Run(t.Context(), args)
}

func TestPasswordLoginLifecycle(t *testing.T) {
	t.Parallel()

	srv := newFakeContxt(t)
	cfg := testConfig(t, srv)

	app := newTestApp(t, srv, cfg, "")
	err := app.run(t, "facilities")
	require.ErrorContains(t, err, "not logged in")

	require.NoError(t, app.run(t, "login", "--username", "ops@example.com", "--password", "hunter2"))
	require.Contains(t, app.stdout.String(), "Logged in until")

	// A fresh process hydrates from the file store.
	app = newTestApp(t, srv, cfg, "")
	require.NoError(t, app.run(t, "facilities"))
	require.Contains(t, app.stdout.String(), "Plant 7")
	require.Contains(t, app.stdout.String(), "America/New_York")

	require.NoError(t, app.run(t, "status"))
	require.Contains(t, app.stdout.String(), "[user]\n  session:   valid")

	require.NoError(t, app.run(t, "logout"))
	require.NoError(t, app.run(t, "status"))
	require.NotContains(t, app.stdout.String(), "session:")
	require.Contains(t, app.stdout.String(), "not logged in")
}

func TestPasswordLogin(t *testing.T) {
	t.Parallel()

	srv := newFakeContxt(t)

	t.Run("prompts for credentials", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, srv, testConfig(t, srv), "ops@example.com\nhunter2\n")
		require.NoError(t, app.run(t, "login"))
		require.Contains(t, app.stderr.String(), "Email: ")
		require.Contains(t, app.stderr.String(), "Password: ")
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, srv, testConfig(t, srv), "")
		err := app.run(t, "login", "--username", "ops@example.com", "--password", "nope")

		var exchangeErr *contxt.AuthExchangeError
		require.ErrorAs(t, err, &exchangeErr)
	})

	t.Run("mfa with flag", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, srv, testConfig(t, srv), "")
		require.NoError(t, app.run(t, "login", "--username", "mfa@example.com", "--password", "hunter2", "--otp", "123456"))
		require.Contains(t, app.stdout.String(), "Logged in until")
	})

	t.Run("mfa prompt", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, srv, testConfig(t, srv), "123456\n")
		require.NoError(t, app.run(t, "login", "--username", "mfa@example.com", "--password", "hunter2"))
		require.Contains(t, app.stderr.String(), "One-time password: ")
	})
}

func TestMachineCommands(t *testing.T) {
	t.Parallel()

	srv := newFakeContxt(t)
	cfg := testConfig(t, srv)
	cfg.ClientID = "machine-client"
	cfg.ClientSecret = "machine-secret"

	app := newTestApp(t, srv, cfg, "")
	require.NoError(t, app.run(t, "token"))
	require.Equal(t, "machine-api-token\n", app.stdout.String())

	require.NoError(t, app.run(t, "facilities"))
	require.Contains(t, app.stdout.String(), "Plant 7")

	require.NoError(t, app.run(t, "status"))
	require.Contains(t, app.stdout.String(), "[machine]\n  session:   valid")

	cfg.ClientSecret = "wrong"
	app = newTestApp(t, srv, cfg, "")
	require.NoError(t, app.run(t, "logout"))
	require.Error(t, app.run(t, "token"))
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	srv := newFakeContxt(t)
	app := newTestApp(t, srv, testConfig(t, srv), "")

	require.True(t, IsUsageError(app.Run(context.Background(), nil)))
	require.True(t, IsUsageError(app.Run(context.Background(), []string{"bogus"})))
	require.Contains(t, app.stderr.String(), "unknown command \"bogus\"")
	require.NoError(t, app.Run(context.Background(), []string{"help"}))
	require.Contains(t, app.stderr.String(), "facilities")
}
