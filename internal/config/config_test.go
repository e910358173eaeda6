package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, ":9100", cfg.Admin)
	assert.Equal(t, 60*time.Second, cfg.SessionTTL)
	assert.Equal(t, int64(1<<20), cfg.CreateBodyLimit)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.RateLimit.Enabled())
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Idle)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "rendezvous:events", cfg.Redis.Channel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RENDEZVOUS_SESSION_TTL", "30s")
	t.Setenv("RENDEZVOUS_LOG_LEVEL", "debug")
	t.Setenv("RENDEZVOUS_RATELIMIT_CLIENT_CONNECTIONS", "5")
	t.Setenv("RENDEZVOUS_TRUST_PROXY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SessionTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.RateLimit.ClientConnections)
	assert.True(t, cfg.RateLimit.Enabled())
	assert.True(t, cfg.TrustProxy)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rendezvous.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":8080"
admin: ""
session_ttl: 2m
log:
  format: text
redis:
  addr: localhost:6379
  channel: sessions
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Empty(t, cfg.Admin)
	assert.Equal(t, 2*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "sessions", cfg.Redis.Channel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"ttl", func(c *Config) { c.SessionTTL = 0 }, "session_ttl"},
		{"body limit", func(c *Config) { c.CreateBodyLimit = -1 }, "create_body_limit"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
		{"burst", func(c *Config) { c.RateLimit.ClientRequests = 1; c.RateLimit.Burst = 0 }, "ratelimit.burst"},
		{"negative rate", func(c *Config) { c.RateLimit.GlobalConnections = -1 }, "must not be negative"},
		{"redis channel", func(c *Config) { c.Redis.Addr = "x:6379"; c.Redis.Channel = "" }, "redis.channel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.msg)
		})
	}

	assert.NoError(t, valid().Validate())
}
