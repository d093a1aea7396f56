// Package metrics declares the Prometheus collectors the runtime
// supervisor exposes, and a handler for /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the supervisor updates.
type Metrics struct {
	TicksProcessed    *prometheus.CounterVec
	PhaseChanges      *prometheus.CounterVec
	HazardAlertsTotal *prometheus.CounterVec
	RuleFindingsTotal *prometheus.CounterVec
	SpeechSpoken      *prometheus.CounterVec
	SpeechSuppressed  *prometheus.CounterVec
	ReviewDuration    prometheus.Histogram
	ExpertErrors      *prometheus.CounterVec
	CurrentPhase      *prometheus.GaugeVec
	TelemetryStale    prometheus.Gauge
}

// New registers every collector against reg and returns the bound
// Metrics. Pass prometheus.NewRegistry() in tests to avoid colliding with
// the global default registry across packages.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "runtime",
				Name:      "ticks_processed_total",
				Help:      "Total snapshot ticks processed by the runtime supervisor.",
			},
			[]string{"phase"},
		),
		PhaseChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "phase",
				Name:      "changes_total",
				Help:      "Total phase transitions committed by the phase tracker.",
			},
			[]string{"from", "to"},
		),
		HazardAlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "hazard",
				Name:      "alerts_total",
				Help:      "Total urgent hazard alerts raised, by alert ID.",
			},
			[]string{"alert_id", "severity"},
		),
		RuleFindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "rules",
				Name:      "findings_total",
				Help:      "Total rule-engine findings raised, by rule ID and severity.",
			},
			[]string{"rule_id", "severity"},
		),
		SpeechSpoken: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "speech",
				Name:      "spoken_total",
				Help:      "Total speech lines delivered, by urgency.",
			},
			[]string{"urgency"},
		),
		SpeechSuppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "speech",
				Name:      "suppressed_total",
				Help:      "Total speech lines suppressed by cooldown, by urgency.",
			},
			[]string{"urgency"},
		),
		ReviewDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "cfi",
				Subsystem: "review",
				Name:      "duration_seconds",
				Help:      "Wall time spent running one expert-team review call.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ExpertErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cfi",
				Subsystem: "expert",
				Name:      "errors_total",
				Help:      "Total errors returned by the expert-team client, by operation.",
			},
			[]string{"operation"},
		),
		CurrentPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cfi",
				Subsystem: "phase",
				Name:      "current",
				Help:      "1 for the currently active phase, 0 for all others.",
			},
			[]string{"phase"},
		),
		TelemetryStale: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cfi",
				Subsystem: "telemetry",
				Name:      "stale",
				Help:      "1 if no telemetry snapshot has arrived within the expected interval.",
			},
		),
	}
}

// Handler returns the HTTP handler serving reg's collectors in Prometheus
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
