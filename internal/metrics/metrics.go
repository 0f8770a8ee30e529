package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bedrock-chat-gateway/internal/llm"
)

var (
	// Counter: exact cache lookups by result (hit | miss | error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exact_cache_lookups_total",
			Help: "Exact cache lookups by result.",
		},
		[]string{"result"},
	)

	// Counter: calls to the model endpoint by outcome (success | not_ready | error).
	InferenceAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_attempts_total",
			Help: "Model invocation attempts by outcome.",
		},
		[]string{"model_id", "outcome"},
	)

	// Histogram: latency of a single model invocation attempt.
	InferenceAttemptSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_attempt_seconds",
			Help:    "Latency of a single model invocation attempt in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"model_id"},
	)

	// Counter: which response shape the reply text came from.
	ReplyShapeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_shape_total",
			Help: "Normalized replies by response shape.",
		},
		[]string{"shape"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"path", "method", "status_code"},
	)

	registerOnce sync.Once
)

// Register adds the collectors to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			InferenceAttemptsTotal,
			InferenceAttemptSeconds,
			ReplyShapeTotal,
			GatewayLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AttemptObserver records every model invocation attempt.
func AttemptObserver() llm.Observer {
	return llm.ObserverFunc(func(_ context.Context, a llm.Attempt) {
		outcome := "success"
		switch {
		case a.NotReady:
			outcome = "not_ready"
		case a.Err != nil:
			outcome = "error"
		}
		InferenceAttemptsTotal.WithLabelValues(a.ModelID, outcome).Inc()
		InferenceAttemptSeconds.WithLabelValues(a.ModelID).Observe(a.Duration.Seconds())
	})
}

// Middleware measures gateway latency for each HTTP request, labelled by the
// matched route pattern so unknown paths do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		GatewayLatencySeconds.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
