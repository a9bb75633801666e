package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_ticks_total",
			Help: "Total number of scheduler ticks",
		},
		[]string{"status"}, // status: ok, error, skipped
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_engine_tick_duration_seconds",
			Help:    "Duration of one scheduler tick",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	DomainErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_domain_errors_total",
			Help: "Failures isolated to one domain during a tick",
		},
		[]string{"domain"},
	)

	BreachesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_breaches_total",
			Help: "Threshold breaches detected",
		},
		[]string{"domain", "level"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_suppressed_total",
			Help: "Breaches suppressed by the deduplication window",
		},
		[]string{"domain", "level"},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_created_total",
			Help: "Alert records created",
		},
		[]string{"domain", "level", "kind"}, // kind: automatic, manual
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_notifications_sent_total",
			Help: "Device tokens successfully delivered to",
		},
	)

	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_notifications_failed_total",
			Help: "Device tokens reported failed on dispatch",
		},
	)

	TokensCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_tokens_cleaned_total",
			Help: "Invalid device tokens cleared from the registry",
		},
	)

	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_token_sweeps_total",
			Help: "Token validation sweeps",
		},
		[]string{"status"}, // status: ok, error, skipped
	)
)
