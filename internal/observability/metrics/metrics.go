package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "notify_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	ruleFires        *prometheus.CounterVec
	ruleSuppressions *prometheus.CounterVec
	ruleSkips        *prometheus.CounterVec
	digestFlushes    *prometheus.CounterVec

	notificationsCreated *prometheus.CounterVec

	deliveryResults *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec

	escalationEvents *prometheus.CounterVec
	escalationSkips  *prometheus.CounterVec

	anomaliesDetected *prometheus.CounterVec

	tickDuration prometheus.Histogram
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingested trigger signals by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Trigger signal ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		ruleFires = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_fires_total",
				Help: "Total rule fires by rule",
			},
			[]string{"rule"},
		)
		ruleSuppressions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_suppressions_total",
				Help: "Total throttle suppressions by rule and reason",
			},
			[]string{"rule", "reason"},
		)
		ruleSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_skips_total",
				Help: "Total rules skipped during evaluation by rule",
			},
			[]string{"rule"},
		)
		digestFlushes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "digest_flushes_total",
				Help: "Total digest windows flushed by rule",
			},
			[]string{"rule"},
		)

		notificationsCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_created_total",
				Help: "Total notifications created by priority",
			},
			[]string{"priority"},
		)

		deliveryResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "delivery_results_total",
				Help: "Total delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		)
		deliveryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "delivery_latency_seconds",
				Help:    "Delivery attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel", "result"},
		)

		escalationEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "escalation_events_total",
				Help: "Total escalation lifecycle events by type",
			},
			[]string{"event"},
		)
		escalationSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "escalation_skips_total",
				Help: "Total escalation advances skipped by reason",
			},
			[]string{"reason"},
		)

		anomaliesDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_detected_total",
				Help: "Total inbox anomalies detected by type",
			},
			[]string{"type"},
		)

		tickDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_duration_seconds",
				Help:    "Periodic tick duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			ruleFires,
			ruleSuppressions,
			ruleSkips,
			digestFlushes,
			notificationsCreated,
			deliveryResults,
			deliveryLatency,
			escalationEvents,
			escalationSkips,
			anomaliesDetected,
			tickDuration,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// RuleFired increments the fire counter for a rule.
func RuleFired(ruleID string) {
	if ruleID == "" {
		ruleID = "unknown"
	}
	if ruleFires != nil {
		ruleFires.WithLabelValues(ruleID).Inc()
	}
}

// RuleSuppressed increments the throttle suppression counter.
func RuleSuppressed(ruleID, reason string) {
	if ruleID == "" {
		ruleID = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	if ruleSuppressions != nil {
		ruleSuppressions.WithLabelValues(ruleID, reason).Inc()
	}
}

// RuleSkipped increments the evaluation skip counter.
func RuleSkipped(ruleID string) {
	if ruleID == "" {
		ruleID = "unknown"
	}
	if ruleSkips != nil {
		ruleSkips.WithLabelValues(ruleID).Inc()
	}
}

// DigestFlushed increments the digest flush counter.
func DigestFlushed(ruleID string) {
	if ruleID == "" {
		ruleID = "unknown"
	}
	if digestFlushes != nil {
		digestFlushes.WithLabelValues(ruleID).Inc()
	}
}

// NotificationCreated increments the created counter by priority.
func NotificationCreated(priority string) {
	if priority == "" {
		priority = "unknown"
	}
	if notificationsCreated != nil {
		notificationsCreated.WithLabelValues(priority).Inc()
	}
}

// ObserveDelivery records one delivery attempt.
func ObserveDelivery(channel, result string, duration time.Duration) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if deliveryResults != nil {
		deliveryResults.WithLabelValues(channel, result).Inc()
	}
	if deliveryLatency != nil {
		deliveryLatency.WithLabelValues(channel, result).Observe(duration.Seconds())
	}
}

// IncEscalationEvent increments escalation lifecycle counters.
func IncEscalationEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if escalationEvents != nil {
		escalationEvents.WithLabelValues(event).Inc()
	}
}

// IncEscalationSkip increments the skipped-advance counter.
func IncEscalationSkip(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if escalationSkips != nil {
		escalationSkips.WithLabelValues(reason).Inc()
	}
}

// AnomalyDetected increments the anomaly counter by type.
func AnomalyDetected(anomalyType string) {
	if anomalyType == "" {
		anomalyType = "unknown"
	}
	if anomaliesDetected != nil {
		anomaliesDetected.WithLabelValues(anomalyType).Inc()
	}
}

// ObserveTick records one periodic tick duration.
func ObserveTick(duration time.Duration) {
	if tickDuration != nil {
		tickDuration.Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
