// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package config loads TopTen configuration from defaults, an optional YAML
// file, TOPTEN_ environment variables and command-line flags, in that order.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/allev1985/topten-sub005/internal/logging"
	"github.com/allev1985/topten-sub005/internal/xdg"
)

// EnvPrefix is stripped from environment variables; "__" separates levels,
// so TOPTEN_IDENTITY__GOTRUE__URL sets identity.gotrue.url.
const EnvPrefix = "TOPTEN_"

// Identity provider names.
const (
	ProviderGoTrue = "gotrue"
	ProviderLocal  = "local"
)

// Backends for the local provider's state.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Auth     AuthConfig     `koanf:"auth"`
	Identity IdentityConfig `koanf:"identity"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Web      WebConfig      `koanf:"web"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// AuthConfig feeds auth.Config.
type AuthConfig struct {
	SiteURL            string        `koanf:"site_url"`
	ConfirmPath        string        `koanf:"confirm_path"`
	ResetPath          string        `koanf:"reset_path"`
	ExpiringSoonWindow time.Duration `koanf:"expiring_soon_window"`
	DefaultRedirect    string        `koanf:"default_redirect"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Provider string       `koanf:"provider"`
	GoTrue   GoTrueConfig `koanf:"gotrue"`
	Local    LocalConfig  `koanf:"local"`
}

// GoTrueConfig configures the GoTrue adapter.
type GoTrueConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// LocalConfig configures the self-hosted provider.
type LocalConfig struct {
	JWTSecret                string        `koanf:"jwt_secret"`
	Issuer                   string        `koanf:"issuer"`
	AccessTokenTTL           time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL          time.Duration `koanf:"refresh_token_ttl"`
	ConfirmationTTL          time.Duration `koanf:"confirmation_ttl"`
	RecoveryTTL              time.Duration `koanf:"recovery_ttl"`
	RequireEmailConfirmation bool          `koanf:"require_email_confirmation"`
	// Store is memory or postgres.
	Store string `koanf:"store"`
	// Revocation is memory or redis.
	Revocation string `koanf:"revocation"`
	// OutboxDir receives one YAML file per outgoing email.
	OutboxDir     string        `koanf:"outbox_dir"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	// AutoMigrate applies pending migrations when serve starts.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// RedisConfig configures the revocation list backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// WebConfig configures the HTTP layer.
type WebConfig struct {
	ProtectedPaths []string `koanf:"protected_paths"`
	LoginPath      string   `koanf:"login_path"`
	CookieSecure   bool     `koanf:"cookie_secure"`
	CookieDomain   string   `koanf:"cookie_domain"`
}

// fallbackOutboxDir is used when no XDG data directory can be resolved.
const fallbackOutboxDir = "var/outbox"

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	outbox, err := xdg.OutboxDir()
	if err != nil {
		outbox = fallbackOutboxDir
	}
	return map[string]any{
		"server.addr":                               ":8080",
		"server.read_header_timeout":                "10s",
		"server.shutdown_timeout":                   "5s",
		"log.level":                                 "info",
		"log.format":                                logging.FormatJSON,
		"metrics.addr":                              "127.0.0.1:9100",
		"auth.site_url":                             "http://localhost:8080",
		"auth.confirm_path":                         "/auth/confirm",
		"auth.reset_path":                           "/reset-password",
		"auth.expiring_soon_window":                 "5m",
		"auth.default_redirect":                     "/dashboard",
		"identity.provider":                         ProviderLocal,
		"identity.gotrue.timeout":                   "10s",
		"identity.local.issuer":                     "topten",
		"identity.local.access_token_ttl":           "1h",
		"identity.local.refresh_token_ttl":          "720h",
		"identity.local.confirmation_ttl":           "24h",
		"identity.local.recovery_ttl":               "1h",
		"identity.local.require_email_confirmation": true,
		"identity.local.store":                      BackendMemory,
		"identity.local.revocation":                 BackendMemory,
		"identity.local.outbox_dir":                 outbox,
		"identity.local.purge_interval":             "1h",
		"database.max_conns":                        10,
		"database.connect_retries":                  6,
		"database.auto_migrate":                     true,
		"web.protected_paths":                       []string{"/dashboard", "/dashboard/**", "/settings/**", "/api/me"},
		"web.login_path":                            "/login",
		"web.cookie_secure":                         false,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen-addr":       "server.addr",
	"metrics-addr":      "metrics.addr",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"identity-provider": "identity.provider",
	"database-url":      "database.url",
	"site-url":          "auth.site_url",
}

// RegisterFlags adds the flags Load understands. Only flags the user sets
// override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen-addr", "", "HTTP API listen address")
	fs.String("metrics-addr", "", "observability listen address (empty disables)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text, pretty)")
	fs.String("identity-provider", "", "identity provider (gotrue, local)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("site-url", "", "public origin used in email links")
}

// Load builds and validates a Config. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := LoadUnvalidated(path, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated builds a Config without checking it, for commands that
// need only part of it.
func LoadUnvalidated(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

// envKey turns TOPTEN_WEB__PROTECTED_PATHS into web.protected_paths. List
// values are comma separated.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "web.protected_paths" {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "listen address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "shutdown timeout must be positive")
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", "unknown log format %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}

	site, err := url.Parse(c.Auth.SiteURL)
	if err != nil || (site.Scheme != "http" && site.Scheme != "https") || site.Host == "" {
		return invalid("auth.site_url", "site url must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.Auth.DefaultRedirect, "/") {
		return invalid("auth.default_redirect", "default redirect must be a path")
	}

	switch c.Identity.Provider {
	case ProviderGoTrue:
		if c.Identity.GoTrue.URL == "" {
			return invalid("identity.gotrue.url", "gotrue url is required")
		}
	case ProviderLocal:
		if err := c.validateLocal(); err != nil {
			return err
		}
	default:
		return invalid("identity.provider", "unknown identity provider %q", c.Identity.Provider)
	}

	if !strings.HasPrefix(c.Web.LoginPath, "/") {
		return invalid("web.login_path", "login path must start with /")
	}
	return nil
}

func (c *Config) validateLocal() error {
	local := c.Identity.Local
	if local.JWTSecret == "" {
		return invalid("identity.local.jwt_secret", "jwt secret is required for the local provider")
	}
	switch local.Store {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database url is required for the postgres store")
		}
	default:
		return invalid("identity.local.store", "unknown store %q", local.Store)
	}
	switch local.Revocation {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "redis address is required for redis revocation")
		}
	default:
		return invalid("identity.local.revocation", "unknown revocation backend %q", local.Revocation)
	}
	return nil
}
