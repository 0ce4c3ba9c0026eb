package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursereg",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursereg",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursereg",
			Subsystem: "registration",
			Name:      "actions_total",
			Help:      "Register and cancel actions by outcome.",
		},
		[]string{"action", "outcome"},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursereg",
			Subsystem: "registration",
			Name:      "reloads_total",
			Help:      "Full collection reloads by table and result.",
		},
		[]string{"table", "success"},
	)
	changeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursereg",
			Subsystem: "changefeed",
			Name:      "events_total",
			Help:      "Change notifications received per table.",
		},
		[]string{"table"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coursereg",
			Subsystem: "registration",
			Name:      "active_sessions",
			Help:      "Student sessions currently held by the server.",
		},
	)
)

// Register adds the collectors to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, actions, reloads, changeEvents, activeSessions)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordAction(action, outcome string) {
	actions.WithLabelValues(action, outcome).Inc()
}

func RecordReload(table string, success bool) {
	reloads.WithLabelValues(table, strconv.FormatBool(success)).Inc()
}

func RecordChangeEvent(table string) {
	changeEvents.WithLabelValues(table).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
