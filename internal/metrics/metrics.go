package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inidars"

type Metrics struct {
	// Intake metrics
	EventsReceived      *prometheus.CounterVec
	EventsRejected      *prometheus.CounterVec
	EventsDropped       *prometheus.CounterVec
	EventsProcessed     *prometheus.CounterVec
	BlockedSourceEvents prometheus.Counter
	QueueDepth          prometheus.Gauge
	WorkerPanics        prometheus.Counter

	// Scoring metrics
	ScoringDuration prometheus.Histogram
	ModelDegraded   prometheus.Counter
	RuleMatches     *prometheus.CounterVec

	// Alert metrics
	AlertsRaised         *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	NotificationErrors   *prometheus.CounterVec

	// Response metrics
	ReputationActions *prometheus.CounterVec
	AuditActions      *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
}

// NewMetrics registers every collector on reg. Each registry must get its
// own Metrics; registering twice on one registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_events_total",
				Help:      "Events accepted by intake, by origin",
			},
			[]string{"origin"},
		),
		EventsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_rejected_total",
				Help:      "Events rejected by validation, by origin",
			},
			[]string{"origin"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_dropped_total",
				Help:      "Events dropped because the intake queue was full, by origin",
			},
			[]string{"origin"},
		),
		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_processed_total",
				Help:      "Events processed by intake workers, by outcome",
			},
			[]string{"outcome"},
		),
		BlockedSourceEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_blocked_source_total",
				Help:      "Events from blocked sources short-circuited before scoring",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "intake_queue_depth",
				Help:      "Events waiting in the intake queue",
			},
		),
		WorkerPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_worker_panics_total",
				Help:      "Panics recovered while processing an event",
			},
		),
		ScoringDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scoring_duration_seconds",
				Help:      "Time spent scoring a single event",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
			},
		),
		ModelDegraded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_model_degraded_total",
				Help:      "Events scored with rules only because the model was unavailable",
			},
		),
		RuleMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_matches_total",
				Help:      "Rule matches, by rule",
			},
			[]string{"rule"},
		),
		AlertsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_raised_total",
				Help:      "Alerts recorded, by severity and threat type",
			},
			[]string{"severity", "threat_type"},
		),
		NotificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Alerts not delivered to notifiers because the dispatch queue was full",
			},
		),
		NotificationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_errors_total",
				Help:      "Failed notifier deliveries, by notifier",
			},
			[]string{"notifier"},
		),
		ReputationActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reputation_actions_total",
				Help:      "Block list changes, by action",
			},
			[]string{"action"},
		),
		AuditActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_actions_total",
				Help:      "Audit log entries appended, by action",
			},
			[]string{"action"},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Failed or dropped writes to external sinks, by sink",
			},
			[]string{"sink"},
		),
	}
}

// NewRegistry returns a registry carrying the Go, process and build info
// collectors alongside the engine metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector(namespace),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
