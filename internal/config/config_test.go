package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://frontend-take-home-service.fetch.com", cfg.APIURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.ExpiryCheck)
	assert.Equal(t, 256, cfg.QueryCacheSize)
	assert.Equal(t, 4096, cfg.LocationCacheSize)
	assert.Equal(t, 1024, cfg.Workspaces)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BUDDY_API_URL", "http://localhost:9999")
	t.Setenv("BUDDY_STORAGE", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BUDDY_SESSION_TTL", "5m")
	t.Setenv("BUDDY_EXPIRY_CHECK", "2s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_SECURE_COOKIE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.APIURL)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.ExpiryCheck)
	assert.True(t, cfg.SecureCookie)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	o := cfg.StorageOptions()
	assert.Equal(t, "redis", o.Backend)
	assert.Equal(t, "redis:6379", o.RedisAddr)
	assert.Equal(t, "buddy:", o.RedisPrefix)

	assert.Len(t, cfg.ClientOptions(), 3)
	assert.Len(t, cfg.SessionOptions(), 2)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("BUDDY_SESSION_TTL", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Storage: "memory", SessionTTL: time.Hour, ExpiryCheck: time.Minute,
			QueryCacheSize: 1, LocationCacheSize: 1, Workspaces: 1, LogLevel: "info"}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Storage = "sqlite"
	assert.Error(t, c.Validate())

	c = base()
	c.Storage = "postgres"
	assert.Error(t, c.Validate())
	c.DatabaseURL = "postgres://localhost/buddy"
	assert.NoError(t, c.Validate())

	c = base()
	c.SessionTTL = 0
	assert.Error(t, c.Validate())

	c = base()
	c.LogLevel = "loud"
	assert.Error(t, c.Validate())
}
