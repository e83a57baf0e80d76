package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabtodo_http_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabtodo_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Realtime metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabtodo_events_published_total",
			Help: "Total number of realtime events published by type",
		},
		[]string{"event"},
	)

	EventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabtodo_event_publish_failures_total",
			Help: "Total number of realtime events that could not be published",
		},
		[]string{"event"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabtodo_events_dropped_total",
			Help: "Total number of events dropped because a subscriber queue was full",
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabtodo_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)

	TopicSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabtodo_topic_subscriptions",
			Help: "Number of active task topic subscriptions",
		},
	)

	// Locking metrics
	LockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabtodo_task_lock_wait_seconds",
			Help:    "Time spent waiting for a per-task lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
		},
		[]string{"backend"},
	)

	LockTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabtodo_task_lock_timeouts_total",
			Help: "Total number of per-task lock acquisitions that timed out",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventPublishFailures)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(RealtimeConnections)
	prometheus.MustRegister(TopicSubscriptions)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(LockTimeouts)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
