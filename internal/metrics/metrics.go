package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepRuns counts RunStep invocations by outcome
	StepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_campaign_step_runs_total",
			Help: "Campaign step executions partitioned by outcome",
		},
		[]string{"outcome"},
	)

	// StepDuration tracks how long a step takes end to end
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crm_campaign_step_duration_seconds",
			Help: "Duration of campaign step executions in seconds",
			Buckets: []float64{
				0.05, // 50ms
				0.25, // 250ms
				1.0,  // 1s
				5.0,  // 5s
				15.0, // 15s
				60.0, // 1m
				300,  // 5m
			},
		},
		[]string{"outcome"},
	)

	// Sends counts dispatch attempts by channel and resulting status
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_campaign_sends_total",
			Help: "Per-recipient dispatch attempts partitioned by channel and status",
		},
		[]string{"channel", "status"},
	)

	// SegmentRefreshes counts membership refreshes by outcome
	SegmentRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_segment_refreshes_total",
			Help: "Segment membership refreshes partitioned by outcome",
		},
		[]string{"outcome"},
	)

	// SkippedCriteria counts malformed criteria ignored during refresh
	SkippedCriteria = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_segment_skipped_criteria_total",
			Help: "Malformed segment criteria skipped while building filters",
		},
	)

	// TrackingEvents counts engagement events by type and outcome
	TrackingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_tracking_events_total",
			Help: "Open and click events partitioned by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordStep records the outcome and duration of a step execution
func RecordStep(outcome string, d time.Duration) {
	StepRuns.WithLabelValues(outcome).Inc()
	StepDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Middleware records request counts and latency. Labels use the matched chi
// route pattern to keep cardinality low.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
