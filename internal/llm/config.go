package llm

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxGenLen   = 2048
	defaultMaxAttempts = 3
	defaultRetryDelay  = 1500 * time.Millisecond

	contentTypeJSON = "application/json"
)

type Config struct {
	//required fields
	ModelID string

	MaxGenLen   int           // max_gen_len sent to the model (default: 2048)
	MaxAttempts int           // total attempts while the model is not ready (default: 3)
	RetryDelay  time.Duration // fixed wait between attempts (default: 1500ms)

	// Optional sampling knobs. Nil leaves them out of the payload so the
	// provider defaults apply.
	Temperature *float64
	TopP        *float64
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelID) == "" {
		return errors.New("ModelID is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		return errors.New("temperature must be between 0 and 1")
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.ModelID = strings.TrimSpace(cfg.ModelID)

	if cfg.MaxGenLen <= 0 {
		cfg.MaxGenLen = defaultMaxGenLen
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return cfg
}

// Invoker sends formatted prompts to the configured model and returns the
// raw response body.
type Invoker struct {
	cfg       Config
	newClient ClientFactory
	observer  Observer
	logger    *zap.Logger
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithObserver reports every attempt to o.
func WithObserver(o Observer) Option {
	return func(i *Invoker) {
		if o != nil {
			i.observer = o
		}
	}
}

// NewInvoker creates an Invoker. An empty model id yields an ErrConfiguration
// error before any client is built.
func NewInvoker(cfg Config, factory ClientFactory, logger *zap.Logger, opts ...Option) (*Invoker, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &Error{Kind: ErrConfiguration, Message: "invalid config", Err: err}
	}
	if factory == nil {
		return nil, &Error{Kind: ErrConfiguration, Message: "client factory is required"}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	inv := &Invoker{
		cfg:       cfg,
		newClient: factory,
		observer:  nopObserver{},
		logger:    logger.Named("llm"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// ModelID returns the configured model identifier.
func (i *Invoker) ModelID() string {
	return i.cfg.ModelID
}

// Params returns the generation parameters sent with every prompt.
func (i *Invoker) Params() GenerationParams {
	return GenerationParams{
		MaxGenLen:   i.cfg.MaxGenLen,
		Temperature: i.cfg.Temperature,
		TopP:        i.cfg.TopP,
	}
}
