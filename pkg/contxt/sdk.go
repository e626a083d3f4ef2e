package contxt

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/httpx"
	"github.com/ndustrialio/contxt-go/pkg/slogx"
)

// Options configures New.
type Options struct {
	// Env selects the built-in audience entries. Defaults to "production".
	Env string

	// SessionType is one of SessionTypeBrowser, SessionTypeCLI or
	// SessionTypeMachine.
	SessionType string

	Auth AuthOptions

	// CustomModuleConfigs overrides built-in audiences by name.
	CustomModuleConfigs map[string]ModuleConfig

	// ExternalModules registers additional audiences and their modules.
	ExternalModules map[string]ExternalModule

	// Audiences replaces the built-in audience table.
	Audiences AudienceTable

	// HTTPClient supplies the base transport and timeout. Its transport is
	// wrapped with request logging and, when RateLimit is set, rate limiting.
	HTTPClient *http.Client

	// RateLimit throttles requests per API host.
	RateLimit *httpx.RateLimitConfig

	// Logger defaults to a logger that discards everything.
	Logger *slog.Logger
}

// SDK is the entry point to the Contxt APIs. It owns one session strategy
// and one RequestClient per audience.
type SDK struct {
	Config Config
	Auth   SessionStrategy

	Assets      *Assets
	Bus         *Bus
	Coordinator *Coordinator
	Facilities  *Facilities
	Health      *Health
	Nionic      *Nionic

	clients  map[string]*RequestClient
	external map[string]any
	logger   *slog.Logger
}

// New resolves the audience configuration, builds the session strategy
// (hydrating it from Auth.Store when one is set) and wires every module.
// Configuration problems are reported here, before any request is made.
func New(ctx context.Context, opts Options) (*SDK, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogx.Discard()
	}

	env := opts.Env
	if env == "" {
		env = EnvProduction
	}

	table := opts.Audiences
	if table == nil {
		table = DefaultAudiences()
	}

	audiences, err := ResolveAudiences(table, env, opts.CustomModuleConfigs, opts.ExternalModules)
	if err != nil {
		return nil, err
	}

	if opts.RateLimit != nil {
		if err := opts.RateLimit.Validate(); err != nil {
			return nil, &ConfigError{Message: "invalid rate limit", Err: err}
		}
	}
	httpClient := newHTTPClient(opts.HTTPClient, opts.RateLimit, logger)

	auth, err := newSessionStrategy(ctx, opts.SessionType, opts.Auth, strategyEnv{
		audiences:  audiences,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	})
	if err != nil {
		return nil, err
	}

	s := &SDK{
		Config:   Config{Env: env, Audiences: audiences},
		Auth:     auth,
		clients:  make(map[string]*RequestClient, len(audiences)),
		external: make(map[string]any, len(opts.ExternalModules)),
		logger:   logger,
	}
	for name, audience := range audiences {
		s.clients[name] = NewRequestClient(audience, auth, httpClient)
	}

	s.Assets = NewAssets(s.clients[AudienceFacilities])
	s.Bus = NewBus(s.clients[AudienceBus], logger)
	s.Coordinator = NewCoordinator(s.clients[AudienceCoordinator])
	s.Facilities = NewFacilities(s.clients[AudienceFacilities])
	s.Health = NewHealth(s.clients[AudienceHealth])
	s.Nionic = NewNionic(s.clients[AudienceNionic])

	for _, name := range slices.Sorted(maps.Keys(opts.ExternalModules)) {
		if build := opts.ExternalModules[name].Module; build != nil {
			s.external[name] = build(s.clients[name])
		}
	}

	logger.DebugContext(ctx, "contxt sdk ready",
		"env", env,
		"session_type", opts.SessionType,
		"audiences", len(audiences),
	)
	return s, nil
}

// Client returns the RequestClient bound to audience.
func (s *SDK) Client(audience string) (*RequestClient, bool) {
	c, ok := s.clients[audience]
	return c, ok
}

// External returns the module built for an ExternalModule.
func (s *SDK) External(name string) (any, bool) {
	m, ok := s.external[name]
	return m, ok
}

// Browser returns the session strategy as a *BrowserAuth, or nil.
func (s *SDK) Browser() *BrowserAuth {
	a, _ := s.Auth.(*BrowserAuth)
	return a
}

// CLI returns the session strategy as a *CLIAuth, or nil.
func (s *SDK) CLI() *CLIAuth {
	a, _ := s.Auth.(*CLIAuth)
	return a
}

// Machine returns the session strategy as a *MachineAuth, or nil.
func (s *SDK) Machine() *MachineAuth {
	a, _ := s.Auth.(*MachineAuth)
	return a
}

// Close releases open message bus channels.
func (s *SDK) Close() error {
	return s.Bus.Close()
}

func newHTTPClient(base *http.Client, limit *httpx.RateLimitConfig, logger *slog.Logger) *http.Client {
	client := &http.Client{Timeout: 10 * time.Second}
	var transport http.RoundTripper
	if base != nil {
		client.Timeout = base.Timeout
		client.Jar = base.Jar
		client.CheckRedirect = base.CheckRedirect
		transport = base.Transport
	}

	transport = slogx.NewTransport(transport, logger)
	if limit != nil {
		transport = httpx.NewRateLimitedTransport(transport, *limit, httpx.HostKeyExtractor)
	}
	client.Transport = transport
	return client
}
