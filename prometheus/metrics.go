package prometheus

import (
	"time"

	"testmgmt-service/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthErrorsCounter   prometheus.CounterVec

	// Tenant verification metrics
	TenantRejectionsCounter prometheus.CounterVec

	// Authorization metrics
	AuthzDenialsCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec

	// Domain entity metrics
	EntityOperationsCounter prometheus.CounterVec

	// Defect workflow metrics
	DefectTransitionsCounter prometheus.CounterVec

	// Audit metrics. AuditWriteFailures is the alert channel for audit rows
	// that could not be written; audit failures never fail the request.
	AuditWriteFailures prometheus.Counter
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	// Use metric prefix from configuration
	prefix := config.Metrics.Prefix

	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuthAttemptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
	)

	AuthErrorsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors by reason",
		},
		[]string{"reason"},
	)

	TenantRejectionsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_tenant_rejections_total",
			Help: "Total number of requests rejected by tenant verification, by reason",
		},
		[]string{"reason"},
	)

	AuthzDenialsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_authz_denials_total",
			Help: "Total number of operations denied by the authorization evaluator",
		},
	)

	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	EntityOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_entity_operations_total",
			Help: "Total number of domain entity operations",
		},
		[]string{"entity", "operation"},
	)

	DefectTransitionsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_defect_transitions_total",
			Help: "Total number of defect status transitions",
		},
		[]string{"from", "to"},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_audit_write_failures_total",
			Help: "Total number of audit log rows that failed to persist",
		},
	)
}

// RecordAuthError increments the auth error counter for the given reason
func RecordAuthError(reason string) {
	AuthErrorsCounter.WithLabelValues(reason).Inc()
}

// RecordTenantRejection increments the tenant rejection counter for the given reason
func RecordTenantRejection(reason string) {
	TenantRejectionsCounter.WithLabelValues(reason).Inc()
}

// RecordEntityOperation increments the entity operation counter
func RecordEntityOperation(entity, operation string) {
	EntityOperationsCounter.WithLabelValues(entity, operation).Inc()
}

// RecordDefectTransition increments the defect transition counter
func RecordDefectTransition(from, to string) {
	DefectTransitionsCounter.WithLabelValues(from, to).Inc()
}

// TrackDBOperation returns a function that records the duration of a database
// operation when called. Use with defer:
//
//	defer prometheus.TrackDBOperation("query")(time.Now())
func TrackDBOperation(operationType string) func(time.Time) {
	return func(start time.Time) {
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(start).Seconds())
	}
}
