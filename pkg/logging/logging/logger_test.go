package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, DefaultLogger(), FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled on purpose
	assert.Same(t, DefaultLogger(), FromContext(nil))
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = WithFields(ctx, zap.String("request_id", "abc"))
	L(ctx).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "abc", entries[0].ContextMap()["request_id"])
	}
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, IsDevelopment("dev"))
	assert.True(t, IsDevelopment("Development"))
	assert.False(t, IsDevelopment("production"))
	assert.False(t, IsDevelopment(""))
}
