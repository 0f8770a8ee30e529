package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"bedrock-chat-gateway/internal/metrics"
	"bedrock-chat-gateway/pkg/logging/logging"
)

// LoggingExactCache wraps an ExactCache with logging and metrics.
type LoggingExactCache struct {
	inner ExactCache
}

// NewLoggingExactCache decorates inner. A nil inner stays nil so a disabled
// cache remains disabled.
func NewLoggingExactCache(inner ExactCache) ExactCache {
	if inner == nil {
		return nil
	}
	return &LoggingExactCache{inner: inner}
}

func (c *LoggingExactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(result).Inc()

	fields := append(keyFields(key),
		zap.String("cache_result", result),
		zap.Duration("latency", time.Since(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("exact_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("exact_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)

	fields := append(keyFields(key),
		zap.Int("value_bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Duration("latency", time.Since(start)),
	)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error("exact_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("exact_cache_set", fields...)
	}

	return err
}

func keyFields(key string) []zap.Field {
	fields := []zap.Field{zap.String("cache_tier", "exact")}
	if parts, ok := parseExactKey(key); ok {
		return append(fields,
			zap.String("model_id", parts.ModelID),
			zap.String("version_id", parts.VersionID),
			zap.String("hash", parts.Hash),
		)
	}
	return append(fields, zap.String("cache_key", key))
}

// parseExactKey reverses ExactCacheKey.String. Model ids may contain ':'
// (e.g. "meta.llama3-8b-instruct-v1:0"), so version and hash are taken from
// the end.
func parseExactKey(key string) (ExactCacheKey, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 || parts[0] != "exact" {
		return ExactCacheKey{}, false
	}
	n := len(parts)
	return ExactCacheKey{
		ModelID:   strings.Join(parts[1:n-2], ":"),
		VersionID: parts[n-2],
		Hash:      parts[n-1],
	}, true
}
