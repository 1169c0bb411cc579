package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/guestledger/dupguard/internal/detect"
)

var (
	// operationTotal counts operation outcomes by type and result.
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dupguard_operation_total",
		Help: "Operation outcomes by operation type and result",
	}, []string{"operation", "result"})

	// operationDuration tracks operation latency by type.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dupguard_operation_duration_seconds",
		Help:    "Operation latency by operation type",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"operation"})

	// cacheLookupTotal counts duplicate-check cache lookups by outcome.
	cacheLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dupguard_cache_lookup_total",
		Help: "Duplicate-check cache lookups by outcome",
	}, []string{"outcome"})

	// healthScore publishes the most recently computed health score.
	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dupguard_health_score",
		Help: "Weighted pipeline health score from 0 to 100",
	})

	// auditQueueDepth publishes the deferred audit queue depth as of the
	// last health computation.
	auditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dupguard_audit_queue_depth",
		Help: "Audit entries waiting in the deferred retry queue",
	})
)

func recordMetrics(s Sample) {
	result := "success"
	if !s.Success {
		result = "failure"
	}
	operationTotal.WithLabelValues(s.Operation, result).Inc()
	operationDuration.WithLabelValues(s.Operation).Observe(s.Duration.Seconds())

	if s.Operation == detect.OpDuplicateCheck {
		outcome := "miss"
		if s.CacheHit {
			outcome = "hit"
		}
		cacheLookupTotal.WithLabelValues(outcome).Inc()
	}
}
