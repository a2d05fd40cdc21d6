// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggoodman/authresolver/auth"
	"github.com/joeshaw/envdecode"
)

// Config is the full process configuration. Defaults are provided via
// struct tags.
type Config struct {
	// Environment name. "dev" together with SkipConnections selects the
	// development identity provider. ENV: ENVIRONMENT
	Environment string `env:"ENVIRONMENT,default=production"`

	// SkipConnections disables outbound connections at startup. ENV: SKIP_CONNECTIONS
	SkipConnections bool `env:"SKIP_CONNECTIONS,default=false"`

	OIDCIssuer       string        `env:"OIDC_ISSUER"`
	OIDCAudience     string        `env:"OIDC_AUDIENCE"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT,default=5s"`

	ListenAddr string `env:"LISTEN_ADDR,default=127.0.0.1:3000"`

	// RedisAddr like "localhost:6379". Empty disables the Redis store. ENV: REDIS_ADDR
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=authresolver:"`

	// APIKeysFile is a JSON file of users and key hashes. ENV: API_KEYS_FILE
	APIKeysFile string `env:"API_KEYS_FILE"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load decodes Config from the environment. Values that cannot be parsed
// are errors rather than silently falling back to defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envdecode cannot.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.DiscoveryTimeout < 0 {
		return fmt.Errorf("config: DISCOVERY_TIMEOUT must not be negative")
	}
	return nil
}

// AuthSettings returns the subset of configuration the auth resolver reads.
func (c *Config) AuthSettings() auth.Settings {
	return auth.Settings{
		Environment:     c.Environment,
		SkipConnections: c.SkipConnections,
		OIDC: auth.OIDCSettings{
			Issuer:   c.OIDCIssuer,
			Audience: c.OIDCAudience,
		},
	}
}

// Logger builds a logger writing to os.Stderr.
func (c *Config) Logger() *slog.Logger {
	return c.NewLogger(os.Stderr)
}

// NewLogger builds a logger writing to w with the configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q: %w", s, err)
	}
	return lvl, nil
}
