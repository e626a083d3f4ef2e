package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"gopkg.in/yaml.v3"
)

// Store backends selectable with CONTXT_STORE or the store key.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// ConfigPathEnv names the variable that points at the config file.
const ConfigPathEnv = "CONTXT_CONFIG"

type Config struct {
	Env          string `yaml:"env"`           // Audience environment (production, staging) (default: production)
	ClientID     string `yaml:"client_id"`     // Identity provider application, or machine client id with a secret
	ClientSecret string `yaml:"client_secret"` // Optional: enables the machine session for token and facilities
	AuthDomain   string `yaml:"auth_domain"`   // Identity provider domain (default: ndustrial.auth0.com)
	CallbackPort int    `yaml:"callback_port"` // Port for the login --browser callback server (default: 5005)

	Store           string `yaml:"store"`            // Session store backend: file, sqlite, redis, memory (default: file)
	StorePath       string `yaml:"store_path"`       // File or SQLite path (default: ~/.contxt/session.json or ~/.contxt/sessions.db)
	StorePassphrase string `yaml:"store_passphrase"` // Optional: encrypts the file store at rest
	RedisAddr       string `yaml:"redis_addr"`       // Redis address for the redis store (default: localhost:6379)
	RedisPassword   string `yaml:"redis_password"`   // Optional

	LogLevel  string `yaml:"log_level"`  // Log level (debug, info, warn, error) (default: info)
	LogFormat string `yaml:"log_format"` // Log format (json, text) (default: text)

	// Modules overrides built-in audiences by name.
	Modules map[string]contxt.ModuleConfig `yaml:"modules"`
}

// DefaultConfig returns the configuration used when neither a file nor the
// environment says otherwise.
func DefaultConfig() Config {
	return Config{
		Env:          contxt.EnvProduction,
		AuthDomain:   "ndustrial.auth0.com",
		CallbackPort: 5005,
		Store:        StoreFile,
		RedisAddr:    "localhost:6379",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig, then
// applies environment overrides and validates the result. An empty path
// falls back to CONTXT_CONFIG and then ~/.contxt/config.yaml; a missing
// default file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = getEnvOrDefault(ConfigPathEnv, "")
		explicit = path != ""
	}
	if !explicit {
		path = filepath.Join(contxtDir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath(cfg.Store)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = getEnvOrDefault("CONTXT_ENV", c.Env)
	c.ClientID = getEnvOrDefault("CONTXT_CLIENT_ID", c.ClientID)
	c.ClientSecret = getEnvOrDefault("CONTXT_CLIENT_SECRET", c.ClientSecret)
	c.AuthDomain = getEnvOrDefault("CONTXT_AUTH_DOMAIN", c.AuthDomain)
	c.CallbackPort = getEnvIntOrDefault("CONTXT_CALLBACK_PORT", c.CallbackPort)
	c.Store = getEnvOrDefault("CONTXT_STORE", c.Store)
	c.StorePath = getEnvOrDefault("CONTXT_STORE_PATH", c.StorePath)
	c.StorePassphrase = getEnvOrDefault("CONTXT_STORE_PASSPHRASE", c.StorePassphrase)
	c.RedisAddr = getEnvOrDefault("CONTXT_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvOrDefault("CONTXT_REDIS_PASSWORD", c.RedisPassword)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Env == "":
		return errors.New("config: env is required")
	case !slices.Contains([]string{StoreFile, StoreSQLite, StoreRedis, StoreMemory}, c.Store):
		return fmt.Errorf("config: unknown store %q", c.Store)
	case (c.Store == StoreFile || c.Store == StoreSQLite) && c.StorePath == "":
		return fmt.Errorf("config: the %s store requires store_path", c.Store)
	case c.Store == StoreRedis && c.RedisAddr == "":
		return errors.New("config: the redis store requires redis_addr")
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	case c.CallbackPort <= 0 || c.CallbackPort > 65535:
		return fmt.Errorf("config: invalid callback port %d", c.CallbackPort)
	}
	return nil
}

// RedirectURI is where the identity provider sends the browser back to.
func (c Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.CallbackPort)
}

func contxtDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".contxt"
	}
	return filepath.Join(home, ".contxt")
}

func defaultStorePath(store string) string {
	switch store {
	case StoreFile:
		return filepath.Join(contxtDir(), "session.json")
	case StoreSQLite:
		return filepath.Join(contxtDir(), "sessions.db")
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}
