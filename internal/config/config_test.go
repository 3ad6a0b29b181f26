// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allev1985/topten-sub005/internal/config"
	"github.com/allev1985/topten-sub005/pkg/errutil"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topten.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOPTEN_IDENTITY__LOCAL__JWT_SECRET", secret)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, config.ProviderLocal, cfg.Identity.Provider)
	assert.Equal(t, time.Hour, cfg.Identity.Local.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.Identity.Local.RefreshTokenTTL)
	assert.True(t, cfg.Identity.Local.RequireEmailConfirmation)
	assert.Equal(t, 5*time.Minute, cfg.Auth.ExpiringSoonWindow)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Contains(t, cfg.Web.ProtectedPaths, "/dashboard/**")
	assert.Equal(t, secret, cfg.Identity.Local.JWTSecret)
}

func TestLoad_OutboxDefaultsToXDGData(t *testing.T) {
	t.Setenv("TOPTEN_IDENTITY__LOCAL__JWT_SECRET", secret)
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/data", "topten", "outbox"), cfg.Identity.Local.OutboxDir)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
log:
  level: debug
  format: text
identity:
  provider: gotrue
  gotrue:
    url: https://auth.example.com/auth/v1
    api_key: from-file
web:
  cookie_secure: true
`)
	t.Setenv("TOPTEN_IDENTITY__GOTRUE__API_KEY", "from-env")
	t.Setenv("TOPTEN_LOG__LEVEL", "warn")
	t.Setenv("TOPTEN_WEB__PROTECTED_PATHS", "/a/**, /b")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "error"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "error", cfg.Log.Level, "flags win over env")
	assert.Equal(t, "from-env", cfg.Identity.GoTrue.APIKey, "env wins over file")
	assert.Equal(t, "https://auth.example.com/auth/v1", cfg.Identity.GoTrue.URL)
	assert.Equal(t, []string{"/a/**", "/b"}, cfg.Web.ProtectedPaths)
	assert.True(t, cfg.Web.CookieSecure)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("TOPTEN_IDENTITY__LOCAL__JWT_SECRET", secret)
	t.Setenv("TOPTEN_SERVER__ADDR", ":7000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	t.Setenv("TOPTEN_IDENTITY__LOCAL__JWT_SECRET", secret)
	t.Setenv("TOPTEN_IDENTITY__LOCAL__STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/topten")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/topten", cfg.Database.URL)
}

func TestLoadUnvalidated_SkipsValidation(t *testing.T) {
	t.Setenv("TOPTEN_IDENTITY__PROVIDER", "ldap")
	t.Setenv("TOPTEN_DATABASE__URL", "postgres://localhost/topten")

	_, err := config.Load("", nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	cfg, err := config.LoadUnvalidated("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/topten", cfg.Database.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeFile(t, "server: [unclosed")
	_, err := config.Load(path, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TOPTEN_IDENTITY__LOCAL__JWT_SECRET", secret)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		field  string
	}{
		{"empty addr", func(c *config.Config) { c.Server.Addr = "" }, "server.addr"},
		{"zero shutdown timeout", func(c *config.Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"relative site url", func(c *config.Config) { c.Auth.SiteURL = "example.com" }, "auth.site_url"},
		{"ftp site url", func(c *config.Config) { c.Auth.SiteURL = "ftp://example.com" }, "auth.site_url"},
		{"absolute default redirect", func(c *config.Config) { c.Auth.DefaultRedirect = "https://x" }, "auth.default_redirect"},
		{"unknown provider", func(c *config.Config) { c.Identity.Provider = "ldap" }, "identity.provider"},
		{"gotrue without url", func(c *config.Config) { c.Identity.Provider = config.ProviderGoTrue }, "identity.gotrue.url"},
		{"local without secret", func(c *config.Config) { c.Identity.Local.JWTSecret = "" }, "identity.local.jwt_secret"},
		{"postgres without url", func(c *config.Config) {
			c.Identity.Local.Store = config.BackendPostgres
			c.Database.URL = ""
		}, "database.url"},
		{"unknown store", func(c *config.Config) { c.Identity.Local.Store = "mysql" }, "identity.local.store"},
		{"redis without addr", func(c *config.Config) { c.Identity.Local.Revocation = config.BackendRedis }, "redis.addr"},
		{"unknown revocation", func(c *config.Config) { c.Identity.Local.Revocation = "memcached" }, "identity.local.revocation"},
		{"relative login path", func(c *config.Config) { c.Web.LoginPath = "login" }, "web.login_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestValidate_GoTrueIgnoresLocalSettings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Identity.Provider = config.ProviderGoTrue
	cfg.Identity.GoTrue.URL = "http://localhost:9999"
	cfg.Identity.Local.JWTSecret = ""
	assert.NoError(t, cfg.Validate())
}
