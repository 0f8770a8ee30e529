// Package chat turns a user message into a model reply: prompt formatting,
// the optional exact cache, model invocation and response normalization.
package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bedrock-chat-gateway/internal/cache"
	"bedrock-chat-gateway/internal/llm"
	"bedrock-chat-gateway/internal/metrics"
	"bedrock-chat-gateway/internal/prompt"
	"bedrock-chat-gateway/pkg/logging/logging"
)

// Invoker is the model call the service depends on. *llm.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) ([]byte, error)
	ModelID() string
	Params() llm.GenerationParams
}

// Service produces one reply per message. It keeps no state between calls
// beyond the optional cache.
type Service struct {
	invoker   Invoker
	cache     cache.ExactCache
	cacheTTL  time.Duration
	versionID string
}

// NewService wires the pipeline. c may be nil to disable caching.
func NewService(inv Invoker, c cache.ExactCache, ttl time.Duration, versionID string) *Service {
	if versionID == "" {
		versionID = "v1"
	}
	return &Service{
		invoker:   inv,
		cache:     c,
		cacheTTL:  ttl,
		versionID: versionID,
	}
}

// Reply returns the generated text for message. Invoker failures are returned
// unchanged (*llm.Error). A response that cannot be parsed or has no known
// shape is not an error: the matching sentinel text is returned instead.
func (s *Service) Reply(ctx context.Context, message string) (string, error) {
	logger := logging.L(ctx)
	start := time.Now()

	p := prompt.Format(message)

	var cacheKey string
	if s.cache != nil {
		key, err := cache.BuildExactCacheKey(s.invoker.ModelID(), s.versionID, s.invoker.Params(), p)
		if err != nil {
			logger.Warn("key_builder_error", zap.Error(err))
		} else {
			cacheKey = key.String()
			// cache is best effort, errors are logged by the decorator
			if cached, hit, _ := s.cache.Get(ctx, cacheKey); hit {
				logger.Info("reply served from cache",
					zap.Int("message_length", len(message)),
					zap.Duration("total_latency", time.Since(start)),
				)
				return string(cached), nil
			}
		}
	}

	logger.Info("generating reply",
		zap.Int("message_length", len(message)),
		zap.String("model_id", s.invoker.ModelID()),
	)

	raw, err := s.invoker.Invoke(ctx, p)
	if err != nil {
		logger.Error("model invocation failed",
			zap.Int("message_length", len(message)),
			zap.Duration("total_latency", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	gen, err := llm.Normalize(raw)
	metrics.ReplyShapeTotal.WithLabelValues(gen.Shape.String()).Inc()

	switch {
	case err != nil:
		logger.Error("error parsing model response",
			zap.Error(err),
			zap.ByteString("raw_response", raw),
		)
		return gen.Text, nil
	case !gen.Recognized():
		logger.Error("unexpected response format from model",
			zap.ByteString("raw_response", raw),
		)
		return gen.Text, nil
	}

	if cacheKey != "" {
		_ = s.cache.Set(ctx, cacheKey, []byte(gen.Text), s.cacheTTL)
	}

	logger.Info("reply generated",
		zap.String("shape", gen.Shape.String()),
		zap.Int("reply_length", len(gen.Text)),
		zap.Duration("total_latency", time.Since(start)),
	)

	return gen.Text, nil
}
