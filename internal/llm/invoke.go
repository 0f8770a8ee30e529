package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Invoke sends one formatted prompt to the model and returns the raw response
// body. Failures are *Error values of kind ErrConfiguration, ErrModelNotReady
// or ErrTransport.
func (i *Invoker) Invoke(ctx context.Context, prompt string) ([]byte, error) {
	start := time.Now()

	if i == nil || i.cfg.ModelID == "" {
		return nil, &Error{Kind: ErrConfiguration, Message: "bedrock model id is not configured"}
	}

	body, err := json.Marshal(providerInvokeRequest{
		Prompt:      prompt,
		MaxGenLen:   i.cfg.MaxGenLen,
		Temperature: i.cfg.Temperature,
		TopP:        i.cfg.TopP,
	})
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "marshal request", Err: err}
	}

	i.logger.Debug("llm request starting",
		zap.String("model_id", i.cfg.ModelID),
		zap.Int("prompt_bytes", len(prompt)),
	)

	raw, attempts, err := i.doWithRetry(ctx, body)
	if err != nil {
		i.logger.Error("llm request failed",
			zap.String("model_id", i.cfg.ModelID),
			zap.Int("attempts", attempts),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	i.logger.Info("llm request completed",
		zap.String("model_id", i.cfg.ModelID),
		zap.Int("attempts", attempts),
		zap.Int("response_bytes", len(raw)),
		zap.Duration("duration", time.Since(start)),
	)

	return raw, nil
}
