package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveybot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "surveybot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	ScoringRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveybot_scoring_runs_total",
			Help: "Scoring passes by outcome (scored, skipped, unavailable)",
		},
		[]string{"outcome"},
	)

	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "surveybot_scoring_duration_seconds",
			Help:    "Duration of a single scoring pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
	)

	RescoredAnswers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surveybot_rescored_answers_total",
			Help: "Answers re-scored because a referenced answer changed",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ScoringRuns)
	prometheus.MustRegister(ScoringDuration)
	prometheus.MustRegister(RescoredAnswers)
}

// ObserveScoring records the outcome and duration of one scoring pass.
func ObserveScoring(outcome string, d time.Duration) {
	ScoringRuns.WithLabelValues(outcome).Inc()
	ScoringDuration.Observe(d.Seconds())
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
