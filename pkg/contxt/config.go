package contxt

import (
	"fmt"
	"maps"
	"slices"
)

// ModuleConfig overrides one built-in audience. It either selects another
// environment from the built-in table (Env) or replaces the entry outright
// (Host plus ClientID, or Host plus NoAuth).
type ModuleConfig struct {
	Env       string `json:"env,omitempty" yaml:"env,omitempty"`
	ClientID  string `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	Host      string `json:"host,omitempty" yaml:"host,omitempty"`
	WebSocket string `json:"webSocket,omitempty" yaml:"webSocket,omitempty"`
	NoAuth    bool   `json:"noAuth,omitempty" yaml:"noAuth,omitempty"`
}

// EnvModule returns an override that selects env for one audience.
func EnvModule(env string) ModuleConfig {
	return ModuleConfig{Env: env}
}

func (m ModuleConfig) complete() bool {
	return m.Host != "" && (m.ClientID != "" || m.NoAuth)
}

// ExternalModule registers a caller-owned module alongside the built-ins. The
// SDK builds a RequestClient for it and passes that to Module.
type ExternalModule struct {
	ClientID  string
	Host      string
	WebSocket string
	NoAuth    bool

	// Module builds the caller's module. Its result is available from
	// SDK.External. May be nil when only the audience is wanted.
	Module func(*RequestClient) any
}

// Config is the resolved, immutable audience configuration of one SDK.
type Config struct {
	Env       string
	Audiences map[string]Audience
}

// Audience looks up a resolved audience by name.
func (c Config) Audience(name string) (Audience, bool) {
	a, ok := c.Audiences[name]
	return a, ok
}

// ResolveAudiences builds the audience map for env. Built-in audiences
// resolve first, from custom when present and table otherwise; external
// modules are merged on top and win on name collisions.
//
// Every built-in audience lacking env is reported in a single ConfigError.
func ResolveAudiences(
	table AudienceTable,
	env string,
	custom map[string]ModuleConfig,
	external map[string]ExternalModule,
) (map[string]Audience, error) {
	if env == "" {
		env = EnvProduction
	}

	resolved := make(map[string]Audience, len(table)+len(external))
	var missing []string

	for _, name := range slices.Sorted(maps.Keys(table)) {
		entries := table[name]

		if override, ok := custom[name]; ok {
			audience, err := resolveCustom(name, override, entries)
			if err != nil {
				return nil, err
			}
			resolved[name] = audience
			continue
		}

		audience, ok := entries[env]
		if !ok {
			missing = append(missing, name)
			continue
		}
		audience.Name = name
		resolved[name] = audience
	}

	if len(missing) > 0 {
		return nil, &ConfigError{
			Message:   fmt.Sprintf("unknown environment %q", env),
			Audiences: missing,
		}
	}

	for _, name := range slices.Sorted(maps.Keys(external)) {
		ext := external[name]
		if ext.Host == "" || (ext.ClientID == "" && !ext.NoAuth) {
			return nil, &ConfigError{
				Message:   "External modules must contain clientId and host properties",
				Audiences: []string{name},
			}
		}

		resolved[name] = Audience{
			Name:      name,
			ClientID:  ext.ClientID,
			Host:      ext.Host,
			WebSocket: ext.WebSocket,
			NoAuth:    ext.NoAuth,
		}
	}

	return resolved, nil
}

func resolveCustom(name string, override ModuleConfig, entries map[string]Audience) (Audience, error) {
	if override.complete() {
		return Audience{
			Name:      name,
			ClientID:  override.ClientID,
			Host:      override.Host,
			WebSocket: override.WebSocket,
			NoAuth:    override.NoAuth,
		}, nil
	}

	if override.Env != "" {
		audience, ok := entries[override.Env]
		if !ok {
			return Audience{}, &ConfigError{
				Message:   fmt.Sprintf("unknown environment %q", override.Env),
				Audiences: []string{name},
			}
		}
		audience.Name = name
		return audience, nil
	}

	return Audience{}, &ConfigError{
		Message:   "Custom module configurations must either contain a host and clientId or specify a target environment",
		Audiences: []string{name},
	}
}
