package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCourtesy = "courtesy"
	OutcomeAnswered = "answered"
	OutcomeFailed   = "failed"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_pipeline_requests_total",
			Help: "Total number of chat pipeline invocations by outcome.",
		},
		[]string{"outcome"},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbchat_sql_executions_total",
			Help: "Total number of synthesized SQL statements handled by the executor.",
		},
		[]string{"kind", "status"},
	)
	sqlExecutionDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbchat_sql_execution_duration_ms",
			Help:    "Database execution latency for validated statements in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	completionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbchat_completion_duration_seconds",
			Help:    "Completion service latency by synthesis stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage", "status"},
	)
	auditRecordsArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbchat_audit_records_archived_total",
			Help: "Total number of audit records written to the object store archive.",
		},
	)
	auditFlushFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbchat_audit_flush_failures_total",
			Help: "Total number of failed audit archive flushes.",
		},
	)
	auditRecordsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbchat_audit_records_dropped_total",
			Help: "Total number of audit records discarded because the archive buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		sqlExecutionsTotal,
		sqlExecutionDurationMs,
		completionDurationSeconds,
		auditRecordsArchivedTotal,
		auditFlushFailuresTotal,
		auditRecordsDroppedTotal,
	)
}

func ObservePipelineOutcome(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSQLExecution(kind string, ok bool, elapsed time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	sqlExecutionsTotal.WithLabelValues(kind, status).Inc()
	sqlExecutionDurationMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveCompletion(stage string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	completionDurationSeconds.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

func ObserveAuditFlush(records int, err error) {
	if err != nil {
		auditFlushFailuresTotal.Inc()
		return
	}
	if records > 0 {
		auditRecordsArchivedTotal.Add(float64(records))
	}
}

func ObserveAuditDropped(records int) {
	if records > 0 {
		auditRecordsDroppedTotal.Add(float64(records))
	}
}
