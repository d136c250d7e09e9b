package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	RecordsUploadedTotal prometheus.Counter
	EntitlementDenials   *prometheus.CounterVec
	ShareLinksIssued     *prometheus.CounterVec
	ShareLinksResolved   *prometheus.CounterVec
	RemindersProcessed   *prometheus.CounterVec
	ReminderRunDuration  prometheus.Histogram

	DBConnections prometheus.Gauge

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter
}

// NewCollector registers every collector on reg. Pass prometheus.DefaultRegisterer
// in the server and a fresh registry in tests.
func NewCollector(serviceName string, reg prometheus.Registerer) *Collector {
	ns := strings.NewReplacer("-", "_", ".", "_").Replace(serviceName)
	f := promauto.With(reg)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		RecordsUploadedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "records",
			Name:      "uploaded_total",
			Help:      "Total number of prescription files accepted.",
		}),

		EntitlementDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "entitlement",
			Name:      "denials_total",
			Help:      "Quota and feature denials by action and reason.",
		}, []string{"action", "reason"}),

		ShareLinksIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "share",
			Name:      "links_issued_total",
			Help:      "Share links handed out, by whether the link was new, reused or refreshed.",
		}, []string{"kind"}),

		ShareLinksResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "share",
			Name:      "links_resolved_total",
			Help:      "Share link lookups by outcome.",
		}, []string{"outcome"}),

		RemindersProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "reminders",
			Name:      "processed_total",
			Help:      "Due reminders handled by the scanner, by outcome.",
		}, []string{"outcome"}),

		ReminderRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "reminders",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full scanner run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),

		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "db",
			Name:      "open_connections",
			Help:      "Current number of open database connections.",
		}),

		AuditEntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),
	}
}

func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
