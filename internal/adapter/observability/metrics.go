package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of model backend requests by concrete model and outcome kind",
		},
		[]string{"model", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Model backend request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"model"},
	)
	AIFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallbacks_total",
			Help: "Number of times orchestration left a model for the fallback roster",
		},
		[]string{"from"},
	)
	AIKeyRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_key_rotations_total",
			Help: "Number of credential rotations after quota exhaustion",
		},
	)
	AIKeysAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ai_keys_available",
			Help: "Credentials in the pool that are not flagged exhausted",
		},
	)
	AIOrchestrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_orchestrations_total",
			Help: "Completed orchestrations by terminal kind (succeeded or an error kind)",
		},
		[]string{"result"},
	)

	AnalysisCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_lookups_total",
			Help: "Project analysis cache lookups by result",
		},
		[]string{"result"},
	)

	PipelinePostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_posts_total",
			Help: "Posts seen by the airdrop pipeline by outcome",
		},
		[]string{"outcome"},
	)
	AirdropRatingHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airdrop_overall_rating",
			Help:    "Distribution of overall airdrop rating ([1,10])",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_events_published_total",
			Help: "Analysis events produced to the broker by outcome",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector once per process.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIFallbacksTotal,
			AIKeyRotationsTotal,
			AIKeysAvailable,
			AIOrchestrationsTotal,
			AnalysisCacheLookupsTotal,
			PipelinePostsTotal,
			AirdropRatingHistogram,
			EventsPublishedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one backend HTTP attempt.
func ObserveAIRequest(model, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(model, outcome).Inc()
	AIRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordFallback counts a hand-off from model to the roster.
func RecordFallback(model string) {
	AIFallbacksTotal.WithLabelValues(model).Inc()
}

// RecordKeyRotation counts a credential rotation.
func RecordKeyRotation() {
	AIKeyRotationsTotal.Inc()
}

// SetKeysAvailable publishes the non-exhausted key count.
func SetKeysAvailable(n int) {
	AIKeysAvailable.Set(float64(n))
}

// RecordOrchestration counts a terminal orchestration state.
func RecordOrchestration(result string) {
	AIOrchestrationsTotal.WithLabelValues(result).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	AnalysisCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordPipelinePost counts a pipeline outcome for one post.
func RecordPipelinePost(outcome string) {
	PipelinePostsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAirdropRating records the stored overall rating.
func ObserveAirdropRating(rating int) {
	if rating >= 1 && rating <= 10 {
		AirdropRatingHistogram.Observe(float64(rating))
	}
}

// RecordEventPublish counts one produce attempt.
func RecordEventPublish(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	EventsPublishedTotal.WithLabelValues(outcome).Inc()
}
