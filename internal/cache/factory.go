package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend   string // none | memory | redis
	TTL       time.Duration
	Prefix    string
	RedisAddr string

	// SweepInterval is how often the memory backend purges expired entries.
	// It is independent of TTL; zero means one minute.
	SweepInterval time.Duration
}

const defaultSweepInterval = time.Minute

// Enabled reports whether replies should be cached at all.
func (c Config) Enabled() bool {
	return c.Backend != "" && c.Backend != BackendNone
}

// NewExactCache builds the configured backend. It returns a nil cache when
// caching is disabled. The returned closer releases the backend's resources.
// The Redis backend is pinged so a bad address fails at startup.
func NewExactCache(ctx context.Context, cfg Config) (ExactCache, io.Closer, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nopCloser{}, nil
	case BackendMemory:
		every := cfg.SweepInterval
		if every <= 0 {
			every = defaultSweepInterval
		}
		c := NewMemoryExactCache(every)
		return c, c, nil
	case BackendRedis:
		c := NewRedisExactCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), RedisConfig{
			Prefix: cfg.Prefix,
		})
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
