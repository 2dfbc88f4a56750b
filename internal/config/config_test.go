package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
jwt:
  private_key_path: /keys/private.pem
  access_expire: 15m
database:
  host: db
  user: u
  password: p
  name: n
redis:
  host: cache
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpire)
	assert.Equal(t, 720*time.Hour, cfg.JWT.RefreshExpire)
	assert.Equal(t, "local", cfg.Session.Backend)
	assert.Equal(t, "/ws", cfg.Realtime.Path)
	assert.Equal(t, "local", cfg.Realtime.Relay)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, http.SameSiteLaxMode, cfg.Cookie.SameSiteMode())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WORKSWAP_PORT", "9090")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("COOKIE_SAME_SITE", "None")
	t.Setenv("JWT_ACCESS_EXPIRE", "5m")
	t.Setenv("REALTIME_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.True(t, cfg.Cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cfg.Cookie.SameSiteMode())
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessExpire)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Realtime.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", minimalYAML + "session:\n  backend: memcached\n"},
		{"nats relay without url", minimalYAML + "realtime:\n  relay: nats\n"},
		{"missing keys", "database:\n  host: db\n"},
		{"rabbit without url", minimalYAML + "rabbitmq:\n  enabled: true\n"},
		{"lease shorter than heartbeat", minimalYAML + "session:\n  lease_ttl: 5s\n"},
		{"lease equal to heartbeat", minimalYAML + "session:\n  lease_ttl: 10s\nrealtime:\n  heartbeat_interval: 10s\n"},
		{"lease within default renew", minimalYAML + "session:\n  lease_ttl: 8s\nrealtime:\n  heartbeat_interval: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_LeaseTTL(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+"session:\n  lease_ttl: 30s\nrealtime:\n  heartbeat_interval: 10s\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Session.LeaseTTL)

	// 0 表示不设租约，与心跳无关
	cfg, err = Load(writeConfig(t, minimalYAML+"session:\n  lease_ttl: 0s\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Session.LeaseTTL)
	assert.Equal(t, 10*time.Second, cfg.Realtime.RenewInterval())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("T_INT", "not-a-number")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_BOOL", "1")

	assert.Equal(t, 7, GetEnvInt("T_INT", 7))
	assert.Equal(t, 90*time.Second, GetEnvDuration("T_DUR", time.Second))
	assert.True(t, GetEnvBool("T_BOOL", false))
	assert.Equal(t, "fallback", GetEnv("T_UNSET_VALUE", "fallback"))
	assert.Equal(t, []string{"x"}, GetEnvSlice("T_UNSET_VALUE", []string{"x"}))
}
