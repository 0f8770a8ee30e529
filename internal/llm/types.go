package llm

import (
	"context"
	"time"
)

// GenerationParams are the knobs sent alongside every prompt.
type GenerationParams struct {
	MaxGenLen   int
	Temperature *float64
	TopP        *float64
}

// Attempt describes a single call to the model endpoint.
type Attempt struct {
	Number      int
	MaxAttempts int
	ModelID     string
	Body        []byte
	Duration    time.Duration

	// ResponseBytes is the size of the body that arrived; zero when Err is set.
	ResponseBytes int
	NotReady      bool
	Err           error
}

// Observer receives every attempt once it has finished.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Attempt)

func (f ObserverFunc) ObserveAttempt(ctx context.Context, a Attempt) {
	f(ctx, a)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(context.Context, Attempt) {}
