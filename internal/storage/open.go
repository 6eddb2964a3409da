package storage

import (
	"context"
	"fmt"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	Dir         string
	RedisAddr   string
	RedisPrefix string
	DatabaseURL string
}

// Open builds the backend named by o.Backend. Every backend it returns also
// implements Lister.
func Open(ctx context.Context, o Options) (ListStore, error) {
	switch o.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(o.Dir)
	case BackendRedis:
		prefix := o.RedisPrefix
		if prefix == "" {
			prefix = "buddy:"
		}
		return DialRedis(ctx, o.RedisAddr, prefix)
	case BackendPostgres:
		return DialPostgres(ctx, o.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", o.Backend)
	}
}

// Shared reports whether the backend is visible to other processes.
func Shared(backend string) bool {
	return backend == BackendRedis || backend == BackendPostgres
}
