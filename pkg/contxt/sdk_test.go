package contxt_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/httpx"
	"github.com/stretchr/testify/require"
)

// machineServer answers client credentials grants and serves one facility
// and one custom resource.
type machineServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	forms []url.Values
	auths []string
}

func newMachineServer(t *testing.T) *machineServer {
	t.Helper()

	m := &machineServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.forms = append(m.forms, r.PostForm)
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "machine-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /v1/facilities/7", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"name":"Plant 7"}`))
	})
	mux.HandleFunc("GET /custom/ping", func(w http.ResponseWriter, r *http.Request) {
		m.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *machineServer) record(r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auths = append(m.auths, r.Header.Get("Authorization"))
}

func (m *machineServer) table() contxt.AudienceTable {
	return contxt.AudienceTable{
		contxt.AudienceContxtAuth: {
			contxt.EnvProduction: {ClientID: "A", Host: m.srv.URL},
		},
		contxt.AudienceFacilities: {
			contxt.EnvProduction: {ClientID: "B", Host: m.srv.URL},
		},
	}
}

type customModule struct {
	client *contxt.RequestClient
}

func (c *customModule) Ping(t *testing.T) bool {
	var out struct {
		Pong bool `json:"pong"`
	}
	require.NoError(t, c.client.Get(t.Context(), "/ping", nil, &out))
	return out.Pong
}

func TestNewMachineSDK(t *testing.T) {
	t.Parallel()

	m := newMachineServer(t)
	limit := httpx.DefaultLimit

	sdk, err := contxt.New(t.Context(), contxt.Options{
		SessionType: contxt.SessionTypeMachine,
		Auth: contxt.AuthOptions{
			ClientID:     "machine-id",
			ClientSecret: "machine-secret",
		},
		Audiences: m.table(),
		ExternalModules: map[string]contxt.ExternalModule{
			"custom": {
				ClientID: "C",
				Host:     m.srv.URL + "/custom",
				Module: func(c *contxt.RequestClient) any {
					return &customModule{client: c}
				},
			},
		},
		HTTPClient: m.srv.Client(),
		RateLimit:  &limit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sdk.Close() })

	require.NotNil(t, sdk.Machine())
	require.Nil(t, sdk.CLI())
	require.Nil(t, sdk.Browser())
	require.False(t, sdk.Auth.IsAuthenticated())

	facility, err := sdk.Facilities.Get(t.Context(), 7)
	require.NoError(t, err)
	require.Equal(t, "Plant 7", facility.Name)

	ext, ok := sdk.External("custom")
	require.True(t, ok)
	require.True(t, ext.(*customModule).Ping(t))

	client, ok := sdk.Client("custom")
	require.True(t, ok)
	require.Equal(t, "C", client.Audience().ClientID)

	m.mu.Lock()
	defer m.mu.Unlock()

	require.Len(t, m.forms, 1)
	require.Equal(t, "client_credentials", m.forms[0].Get("grant_type"))
	require.Equal(t, "machine-id", m.forms[0].Get("client_id"))
	require.Equal(t, []string{"C", "B"}, m.forms[0]["audiences"])
	require.Equal(t, []string{"Bearer machine-token", "Bearer machine-token"}, m.auths)
	require.True(t, sdk.Auth.IsAuthenticated())
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	m := newMachineServer(t)

	t.Run("unknown session type", func(t *testing.T) {
		t.Parallel()

		_, err := contxt.New(t.Context(), contxt.Options{
			SessionType: "kiosk",
			Audiences:   m.table(),
		})

		var cfgErr *contxt.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.ErrorIs(t, err, contxt.ErrUnknownSessionType)
	})

	t.Run("external module without host", func(t *testing.T) {
		t.Parallel()

		_, err := contxt.New(t.Context(), contxt.Options{
			SessionType: contxt.SessionTypeMachine,
			Auth:        contxt.AuthOptions{ClientID: "id", ClientSecret: "secret"},
			Audiences:   m.table(),
			ExternalModules: map[string]contxt.ExternalModule{
				"custom": {ClientID: "C"},
			},
		})

		var cfgErr *contxt.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("browser without navigate", func(t *testing.T) {
		t.Parallel()

		_, err := contxt.New(t.Context(), contxt.Options{
			SessionType: contxt.SessionTypeBrowser,
			Auth: contxt.AuthOptions{
				ClientID:    "spa",
				Domain:      "auth.example.com",
				RedirectURI: "https://app.example.com/callback",
			},
			Audiences: m.table(),
		})

		var authErr *contxt.AuthConfigError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, contxt.SessionTypeBrowser, authErr.SessionType)
	})

	t.Run("invalid rate limit", func(t *testing.T) {
		t.Parallel()

		_, err := contxt.New(t.Context(), contxt.Options{
			SessionType: contxt.SessionTypeMachine,
			Auth:        contxt.AuthOptions{ClientID: "id", ClientSecret: "secret"},
			Audiences:   m.table(),
			RateLimit:   &httpx.RateLimitConfig{},
		})

		var cfgErr *contxt.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})
}

func TestModuleWithoutAudience(t *testing.T) {
	t.Parallel()

	m := newMachineServer(t)
	sdk, err := contxt.New(t.Context(), contxt.Options{
		SessionType: contxt.SessionTypeMachine,
		Auth:        contxt.AuthOptions{ClientID: "id", ClientSecret: "secret"},
		Audiences:   m.table(),
	})
	require.NoError(t, err)

	_, ok := sdk.Client(contxt.AudienceCoordinator)
	require.False(t, ok)

	var cfgErr *contxt.ConfigError
	_, err = sdk.Coordinator.ListOrganizations(t.Context())
	require.ErrorAs(t, err, &cfgErr)

	_, err = sdk.Bus.Connect(t.Context(), "org-1")
	require.ErrorAs(t, err, &cfgErr)
}
