package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowmirror_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Sync Metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_sync_runs_total",
			Help: "Total number of provider sync runs",
		},
		[]string{"sync_type", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowmirror_sync_run_duration_seconds",
			Help:    "Provider sync run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"sync_type"},
	)

	SyncEntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_sync_entities_total",
			Help: "Entities reconciled, by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	// Scheduler Metrics
	SchedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_scheduler_ticks_total",
			Help: "Scheduler ticks, by outcome (ran, skipped, not_leader)",
		},
		[]string{"outcome"},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmirror_scheduler_running",
			Help: "1 while a scheduled sync is in progress",
		},
	)

	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmirror_scheduler_leader",
			Help: "1 when this replica holds scheduler leadership",
		},
	)

	RetentionDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_retention_deleted_total",
			Help: "Rows removed by retention cleanup",
		},
		[]string{"table"},
	)

	// AI Metrics
	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_ai_tokens_total",
			Help: "LLM tokens observed in synced executions",
		},
		[]string{"ai_provider", "direction"},
	)

	AICostDollarsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmirror_ai_cost_dollars_total",
			Help: "Estimated LLM spend observed in synced executions",
		},
		[]string{"ai_provider"},
	)

	// Database Metrics
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmirror_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records HTTP metrics labelled by chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordSyncRun records one finished provider sync run
func RecordSyncRun(syncType, status string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(syncType, status).Inc()
	SyncRunDuration.WithLabelValues(syncType).Observe(duration.Seconds())
}

// RecordEntities adds n entities with the given outcome
func RecordEntities(entity, outcome string, n int) {
	if n > 0 {
		SyncEntitiesTotal.WithLabelValues(entity, outcome).Add(float64(n))
	}
}

// RecordTick records a scheduler tick outcome
func RecordTick(outcome string) {
	SchedulerTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordAIUsage records extracted token usage and cost
func RecordAIUsage(provider string, input, output int, cost float64) {
	if provider == "" {
		provider = "unknown"
	}
	if input > 0 {
		AITokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		AITokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
	if cost > 0 {
		AICostDollarsTotal.WithLabelValues(provider).Add(cost)
	}
}

// RecordRetention records rows removed from a table by cleanup
func RecordRetention(table string, n int64) {
	if n > 0 {
		RetentionDeletedTotal.WithLabelValues(table).Add(float64(n))
	}
}

func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
