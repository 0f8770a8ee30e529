package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*bedrockruntime.InvokeModelOutput)
	return out, args.Error(1)
}

// countingFactory hands out the same runtime and counts how often a client
// was requested.
type countingFactory struct {
	mu    sync.Mutex
	built int
	rt    Runtime
}

func (f *countingFactory) New() Runtime {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built++
	return f.rt
}

func (f *countingFactory) Built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *attemptRecorder) ObserveAttempt(_ context.Context, a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *attemptRecorder) All() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attempt(nil), r.attempts...)
}

func notReady() error {
	return &types.ModelNotReadyException{Message: aws.String("Model is not ready for inference.")}
}

func output(body string) *bedrockruntime.InvokeModelOutput {
	return &bedrockruntime.InvokeModelOutput{Body: []byte(body), ContentType: aws.String(contentTypeJSON)}
}

func newTestInvoker(t *testing.T, rt Runtime, opts ...Option) (*Invoker, *countingFactory) {
	t.Helper()

	f := &countingFactory{rt: rt}
	inv, err := NewInvoker(Config{
		ModelID:    "meta.llama3-8b-instruct-v1:0",
		RetryDelay: time.Millisecond,
	}, f.New, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return inv, f
}

func TestNewInvokerRequiresModelID(t *testing.T) {
	t.Parallel()

	f := &countingFactory{rt: &mockRuntime{}}
	_, err := NewInvoker(Config{ModelID: "   "}, f.New, zaptest.NewLogger(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, f.Built(), "no client may be built for an invalid config")
}

func TestNewInvokerRejectsOutOfRangeSampling(t *testing.T) {
	t.Parallel()

	temp := 1.5
	_, err := NewInvoker(Config{ModelID: "m", Temperature: &temp}, (&countingFactory{}).New, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInvokeZeroValueIsConfigurationError(t *testing.T) {
	t.Parallel()

	var inv Invoker
	_, err := inv.Invoke(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	var got *bedrockruntime.InvokeModelInput
	rt.On("InvokeModel", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*bedrockruntime.InvokeModelInput) }).
		Return(output(`{"generation":" Hi there! "}`), nil).Once()

	rec := &attemptRecorder{}
	inv, f := newTestInvoker(t, rt, WithObserver(rec))

	raw, err := inv.Invoke(context.Background(), "PROMPT")
	require.NoError(t, err)
	assert.JSONEq(t, `{"generation":" Hi there! "}`, string(raw))

	require.NotNil(t, got)
	assert.Equal(t, "meta.llama3-8b-instruct-v1:0", aws.ToString(got.ModelId))
	assert.Equal(t, "application/json", aws.ToString(got.ContentType))
	assert.Equal(t, "application/json", aws.ToString(got.Accept))
	assert.JSONEq(t, `{"prompt":"PROMPT","max_gen_len":2048}`, string(got.Body))

	assert.Equal(t, 1, f.Built())
	attempts := rec.All()
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].Number)
	assert.Equal(t, 3, attempts[0].MaxAttempts)
	assert.Equal(t, len(raw), attempts[0].ResponseBytes)
	assert.NoError(t, attempts[0].Err)
	rt.AssertExpectations(t)
}

func TestInvokeSendsConfiguredSampling(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	var body []byte
	rt.On("InvokeModel", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { body = args.Get(1).(*bedrockruntime.InvokeModelInput).Body }).
		Return(output(`{"generation":"ok"}`), nil).Once()

	temp, topP := 0.7, 0.9
	inv, err := NewInvoker(Config{
		ModelID:     "m",
		MaxGenLen:   512,
		Temperature: &temp,
		TopP:        &topP,
	}, (&countingFactory{rt: rt}).New, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "p")
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, map[string]any{
		"prompt":      "p",
		"max_gen_len": float64(512),
		"temperature": 0.7,
		"top_p":       0.9,
	}, sent)
}

func TestInvokeRetryBound(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, notReady())

	rec := &attemptRecorder{}
	inv, f := newTestInvoker(t, rt, WithObserver(rec))

	_, err := inv.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsModelNotReady(err))
	assert.NotErrorIs(t, err, ErrTransport)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 3, llmErr.Attempts)
	assert.Contains(t, llmErr.Error(), "retries exhausted")

	rt.AssertNumberOfCalls(t, "InvokeModel", 3)
	// initial client plus one fresh client per retry
	assert.Equal(t, 3, f.Built())

	attempts := rec.All()
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Number)
		assert.True(t, a.NotReady)
	}
}

func TestInvokeRecoversOnSecondAttempt(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, notReady()).Once()
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(output(`{"generation":"hello"}`), nil).Once()

	rec := &attemptRecorder{}
	inv, f := newTestInvoker(t, rt, WithObserver(rec))

	raw, err := inv.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"generation":"hello"}`, string(raw))

	assert.Len(t, rec.All(), 2)
	assert.Equal(t, 2, f.Built())
	rt.AssertExpectations(t)
}

func TestInvokeRecoversOnThirdAttempt(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, notReady()).Twice()
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(output(`{"completion":"ok"}`), nil).Once()

	rec := &attemptRecorder{}
	inv, _ := newTestInvoker(t, rt, WithObserver(rec))

	raw, err := inv.Invoke(context.Background(), "p")
	require.NoError(t, err)

	gen, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "ok", gen.Text)
	assert.Len(t, rec.All(), 3)
}

func TestInvokeDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).
		Return(nil, &types.AccessDeniedException{Message: aws.String("not authorized to invoke")}).Once()

	inv, f := newTestInvoker(t, rt)

	_, err := inv.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, IsModelNotReady(err))
	assert.Contains(t, err.Error(), "not authorized to invoke")

	rt.AssertNumberOfCalls(t, "InvokeModel", 1)
	assert.Equal(t, 1, f.Built())
}

func TestInvokePlainErrorIsTransport(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused")).Once()

	inv, _ := newTestInvoker(t, rt)

	_, err := inv.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInvokeCancelledDuringRetryDelay(t *testing.T) {
	t.Parallel()

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, notReady())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv, err := NewInvoker(Config{
		ModelID:    "m",
		RetryDelay: time.Hour,
	}, (&countingFactory{rt: rt}).New, zaptest.NewLogger(t),
		WithObserver(ObserverFunc(func(context.Context, Attempt) { cancel() })))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := inv.Invoke(ctx, "p")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("invoke did not return after cancellation")
	}
	rt.AssertNumberOfCalls(t, "InvokeModel", 1)
}

func TestInvokeLogsEachAttempt(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, notReady()).Twice()
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(output(`{"generation":"x"}`), nil).Once()

	inv, err := NewInvoker(Config{ModelID: "m", RetryDelay: time.Millisecond},
		(&countingFactory{rt: rt}).New, zap.New(core))
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "p")
	require.NoError(t, err)

	assert.Equal(t, 3, logs.FilterMessage("llm upstream request").Len())
	assert.Equal(t, 2, logs.FilterMessage("model not ready, recreating client before retry").Len())
	assert.Equal(t, 1, logs.FilterMessage("llm upstream response received").Len())

	completed := logs.FilterMessage("llm request completed").All()
	require.Len(t, completed, 1)
	assert.EqualValues(t, 3, completed[0].ContextMap()["attempts"])
}

// timelineRuntime answers not-ready until the last call and stamps every
// client build and every call on one timeline.
type timelineRuntime struct {
	mu     sync.Mutex
	calls  []time.Time
	builds []time.Time
	okOn   int
}

func (r *timelineRuntime) New() Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, time.Now())
	return r
}

func (r *timelineRuntime) InvokeModel(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, time.Now())
	if len(r.calls) < r.okOn {
		return nil, notReady()
	}
	return output(`{"generation":"ok"}`), nil
}

func TestInvokeWaitsFixedDelayAfterRecreatingClient(t *testing.T) {
	t.Parallel()

	const delay = 40 * time.Millisecond

	rt := &timelineRuntime{okOn: 3}
	inv, err := NewInvoker(Config{
		ModelID:    "meta.llama3-8b-instruct-v1:0",
		RetryDelay: delay,
	}, rt.New, zaptest.NewLogger(t))
	require.NoError(t, err)

	raw, err := inv.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.JSONEq(t, `{"generation":"ok"}`, string(raw))

	require.Len(t, rt.calls, 3)
	require.Len(t, rt.builds, 3)

	for i := 1; i < len(rt.calls); i++ {
		gap := rt.calls[i].Sub(rt.calls[i-1])
		assert.GreaterOrEqual(t, gap, delay, "gap before attempt %d", i+1)
		// a growing backoff would at least double the delay
		assert.Less(t, gap, 2*delay, "gap before attempt %d", i+1)

		// the client for attempt i+1 is built after attempt i and before the wait
		build := rt.builds[i]
		assert.False(t, build.Before(rt.calls[i-1]), "client %d built before attempt %d ran", i+1, i)
		assert.GreaterOrEqual(t, rt.calls[i].Sub(build), delay, "client %d built after the wait", i+1)
	}
}
