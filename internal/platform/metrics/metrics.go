package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application-wide Prometheus metrics.
type Metrics struct {
	ProfilesCreated prometheus.Counter
	ProfilesDeleted prometheus.Counter

	// GDPR orchestration metrics, labelled by operation (download|delete)
	// and outcome (success|partial|failed).
	GDPROperations      *prometheus.CounterVec
	GDPRRemoteCalls     *prometheus.CounterVec
	GDPRRemoteDuration  *prometheus.HistogramVec
	ServiceConnections  prometheus.Counter
	EndpointLatency     *prometheus.HistogramVec
	AuditEntriesEmitted *prometheus.CounterVec
	AuditFlushFailures  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ProfilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profile_profiles_created_total",
			Help: "Total number of profiles created",
		}),
		ProfilesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profile_profiles_deleted_total",
			Help: "Total number of profiles deleted via GDPR removal",
		}),
		GDPROperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_gdpr_operations_total",
			Help: "Connected-service GDPR operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		GDPRRemoteCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_gdpr_remote_calls_total",
			Help: "Remote GDPR endpoint calls by service and result",
		}, []string{"service", "result"}),
		GDPRRemoteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profile_gdpr_remote_call_duration_seconds",
			Help:    "Duration of remote GDPR endpoint calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service"}),
		ServiceConnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "profile_service_connections_total",
			Help: "Total number of service connections created",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profile_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AuditEntriesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_audit_entries_emitted_total",
			Help: "Audit entries emitted by sink",
		}, []string{"sink"}),
		AuditFlushFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_audit_flush_failures_total",
			Help: "Audit flush failures by sink",
		}, []string{"sink"}),
	}
}
