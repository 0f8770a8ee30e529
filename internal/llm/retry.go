package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// doWithRetry sends body to the model, retrying only while the provider
// reports that the model is not ready yet.
//   - At most MaxAttempts calls are made, RetryDelay apart (fixed, no jitter).
//   - A fresh client is built right after a not-ready answer, before waiting.
//   - Every other error ends the loop immediately.
//   - The wait and the call both respect ctx.
//
// It returns the raw response body and the number of attempts used.
func (i *Invoker) doWithRetry(ctx context.Context, body []byte) ([]byte, int, error) {
	maxAttempts := i.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	client := i.newClient()
	attempt := 0

	operation := func() ([]byte, error) {
		attempt++

		i.logger.Debug("llm upstream request",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("model_id", i.cfg.ModelID),
			zap.ByteString("body", body),
		)

		start := time.Now()
		out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(i.cfg.ModelID),
			Body:        body,
			ContentType: aws.String(contentTypeJSON),
			Accept:      aws.String(contentTypeJSON),
		})

		a := Attempt{
			Number:      attempt,
			MaxAttempts: maxAttempts,
			ModelID:     i.cfg.ModelID,
			Body:        body,
			Duration:    time.Since(start),
			Err:         err,
		}

		if err == nil {
			a.ResponseBytes = len(out.Body)
			i.observer.ObserveAttempt(ctx, a)
			i.logger.Debug("llm upstream response received",
				zap.Int("attempt", attempt),
				zap.Int("response_bytes", a.ResponseBytes),
				zap.Duration("duration", a.Duration),
			)
			return out.Body, nil
		}

		if isNotReadySignal(err) {
			a.NotReady = true
			i.observer.ObserveAttempt(ctx, a)

			if attempt < maxAttempts {
				i.logger.Info("model not ready, recreating client before retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", maxAttempts),
					zap.Duration("delay", i.cfg.RetryDelay),
				)
				client = i.newClient()
			}
			return nil, err
		}

		i.observer.ObserveAttempt(ctx, a)
		i.logger.Warn("llm upstream error",
			zap.Int("attempt", attempt),
			zap.Duration("duration", a.Duration),
			zap.Error(err),
		)
		return nil, backoff.Permanent(err)
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(i.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			i.logger.Debug("backing off before retry",
				zap.Duration("backoff", wait),
				zap.Int("next_attempt", attempt+1),
			)
		}),
	)
	if err == nil {
		return raw, attempt, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return nil, attempt, classify(err, attempt)
}

// classify turns the last error of the loop into an *Error.
func classify(err error, attempts int) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Kind:     ErrTransport,
			Attempts: attempts,
			Message:  "request cancelled: " + err.Error(),
			Err:      err,
		}
	case isNotReadySignal(err):
		return &Error{
			Kind:     ErrModelNotReady,
			Attempts: attempts,
			Message:  fmt.Sprintf("model is not ready for inference after %d attempts, retries exhausted", attempts),
			Err:      err,
		}
	default:
		return &Error{
			Kind:     ErrTransport,
			Attempts: attempts,
			Message:  "error communicating with bedrock: " + providerMessage(err),
			Err:      err,
		}
	}
}
