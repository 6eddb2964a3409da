// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/session"
	"github.com/briangreenhill/buddy/internal/storage"
)

// Config holds all application configuration
type Config struct {
	APIURL      string        `env:"BUDDY_API_URL" envDefault:"https://frontend-take-home-service.fetch.com"`
	HTTPTimeout time.Duration `env:"BUDDY_HTTP_TIMEOUT" envDefault:"30s"`
	Debug       bool          `env:"BUDDY_DEBUG"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`

	Port          string `env:"PORT" envDefault:"8080"`
	SecureCookie  bool   `env:"SESSION_SECURE_COOKIE"`
	Workspaces    int    `env:"BUDDY_WORKSPACES" envDefault:"1024"`
	SessionCookie string `env:"BUDDY_SESSION_COOKIE" envDefault:"buddy_session"`

	Storage     string `env:"BUDDY_STORAGE" envDefault:"memory"`
	DataDir     string `env:"BUDDY_DATA_DIR"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"BUDDY_REDIS_PREFIX" envDefault:"buddy:"`
	DatabaseURL string `env:"DATABASE_URL"`

	SessionTTL        time.Duration `env:"BUDDY_SESSION_TTL" envDefault:"1h"`
	ExpiryCheck       time.Duration `env:"BUDDY_EXPIRY_CHECK" envDefault:"60s"`
	QueryCacheSize    int           `env:"BUDDY_QUERY_CACHE_SIZE" envDefault:"256"`
	LocationCacheSize int           `env:"BUDDY_LOCATION_CACHE_SIZE" envDefault:"4096"`

	SweepSchedule string `env:"BUDDY_SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

// Load reads configuration from environment variables
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings each storage backend needs.
func (c Config) Validate() error {
	switch c.Storage {
	case storage.BackendMemory, storage.BackendFile:
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis storage")
		}
	case storage.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("BUDDY_STORAGE must be one of memory, file, redis, postgres; got %q", c.Storage)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("BUDDY_SESSION_TTL must be positive")
	}
	if c.ExpiryCheck <= 0 {
		return fmt.Errorf("BUDDY_EXPIRY_CHECK must be positive")
	}
	if c.QueryCacheSize <= 0 || c.LocationCacheSize <= 0 || c.Workspaces <= 0 {
		return fmt.Errorf("cache sizes must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %v", err)
	}
	return nil
}

// StorageOptions maps the storage settings onto storage.Open.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.Storage,
		Dir:         c.DataDir,
		RedisAddr:   c.RedisAddr,
		RedisPrefix: c.RedisPrefix,
		DatabaseURL: c.DatabaseURL,
	}
}

// ClientOptions configures the remote client from c.
func (c Config) ClientOptions() []fetch.Option {
	return []fetch.Option{
		fetch.WithBaseURL(c.APIURL),
		fetch.WithTimeout(c.HTTPTimeout),
		fetch.WithDebug(c.Debug),
	}
}

// SessionOptions sets the session TTL and check interval from c.
func (c Config) SessionOptions() []session.Option {
	return []session.Option{session.WithTTL(c.SessionTTL), session.WithInterval(c.ExpiryCheck)}
}

// Level is the parsed LOG_LEVEL, info when unset.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
