package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bedrock-chat-gateway/internal/cache"
	"bedrock-chat-gateway/internal/llm"
)

type Config struct {
	Port           string
	Env            string
	ClientOrigin   string
	RequestTimeout time.Duration

	AWS llm.AWSConfig
	LLM llm.Config

	Cache        cache.Config
	CacheVersion string
}

// Production reports whether internal error messages must be hidden.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "production", "prod":
		return true
	}
	return false
}

// LoadConfig reads the environment. BEDROCK_MODEL_ID is the only required
// variable.
func LoadConfig() (Config, error) {
	var errs []error

	cfg := Config{
		Port:         getenv("PORT", "3001"),
		Env:          os.Getenv("ENV"),
		ClientOrigin: getenv("CLIENT_ORIGIN", "*"),
		AWS: llm.AWSConfig{
			Region:          os.Getenv("AWS_REGION"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		LLM: llm.Config{
			ModelID: strings.TrimSpace(os.Getenv("BEDROCK_MODEL_ID")),
		},
		Cache: cache.Config{
			Backend:   strings.ToLower(getenv("CACHE_BACKEND", cache.BackendNone)),
			Prefix:    "chat",
			RedisAddr: getenv("REDIS_ADDR", "127.0.0.1:6379"),
		},
		CacheVersion: getenv("CACHE_VERSION", "v1"),
	}

	if cfg.LLM.ModelID == "" {
		errs = append(errs, errors.New("BEDROCK_MODEL_ID environment variable is required"))
	}

	var err error
	if cfg.LLM.MaxGenLen, err = getenvInt("BEDROCK_MAX_GEN_LEN", 2048); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.MaxAttempts, err = getenvInt("BEDROCK_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.RetryDelay, err = getenvDuration("BEDROCK_RETRY_DELAY", 1500*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.Temperature, err = getenvFloatPtr("BEDROCK_TEMPERATURE"); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.TopP, err = getenvFloatPtr("BEDROCK_TOP_P"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequestTimeout, err = getenvDuration("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Cache.TTL, err = getenvDuration("CACHE_TTL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.Cache.SweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", time.Minute); err != nil {
		errs = append(errs, err)
	}

	switch cfg.Cache.Backend {
	case cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be none, memory or redis, got %q", cfg.Cache.Backend))
	}

	return cfg, errors.Join(errs...)
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getenvFloatPtr(key string) (*float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return &f, nil
}
