package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Метрики циклов
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_cycles_total",
		Help: "Total number of optimization cycles run",
	}, []string{"status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_cycle_duration_seconds",
		Help:    "Duration of one optimization cycle",
		Buckets: prometheus.DefBuckets,
	})

	lockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_cycle_lock_contention_total",
		Help: "Cycles skipped because the publisher lock was held",
	})

	// Метрики оценки правил
	rulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_rules_evaluated_total",
		Help: "Total number of rules evaluated",
	})

	rulesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_rules_matched_total",
		Help: "Total number of rules whose conditions matched",
	}, []string{"rule_type"})

	rulesSkippedGate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_rules_gated_total",
		Help: "Rules skipped before evaluation by schedule, cooldown or validation",
	}, []string{"reason"})

	// Метрики действий
	actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_actions_executed_total",
		Help: "Total number of actions executed",
	}, []string{"type"})

	actionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_actions_skipped_total",
		Help: "Actions skipped by conflict resolution",
	}, []string{"type"})

	actionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_actions_failed_total",
		Help: "Actions that failed to apply",
	}, []string{"type"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_action_duration_seconds",
		Help:    "Duration of a single action execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// Метрики снапшотов и уведомлений
	snapshotFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "optimizer_snapshot_fetch_duration_seconds",
		Help:    "Duration of a single metric snapshot fetch",
		Buckets: prometheus.DefBuckets,
	})

	snapshotFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_snapshot_fetch_errors_total",
		Help: "Metric snapshot fetches that failed",
	})

	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimizer_notification_failures_total",
		Help: "Alert notifications that failed to deliver",
	})

	executionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_executions_recorded_total",
		Help: "Audit records written, by result",
	}, []string{"result"})

	// HTTP метрики
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "optimizer_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimizer_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})
)

// RecordHTTPRequest записывает HTTP запрос
func RecordHTTPRequest(method, endpoint string, duration float64, statusCode int) {
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	status := "success"
	if statusCode >= 400 {
		status = "error"
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
