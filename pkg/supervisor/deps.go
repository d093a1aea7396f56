package supervisor

import (
	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/hazard"
	"github.com/aerocfi/cfi-supervisor/pkg/journal"
	"github.com/aerocfi/cfi-supervisor/pkg/metrics"
	"github.com/aerocfi/cfi-supervisor/pkg/phase"
	"github.com/aerocfi/cfi-supervisor/pkg/review"
	"github.com/aerocfi/cfi-supervisor/pkg/rules"
)

// Component overrides. New() builds its own phase.Tracker,
// rules.Engine, hazard.Monitor, and review.Builder with package
// defaults; these Options let callers such as tests substitute their
// own.

func WithPhaseTracker(t *phase.Tracker) Option {
	return func(c *Config) { c.phaseTracker = t }
}

func WithRulesEngine(e *rules.Engine) Option {
	return func(c *Config) { c.rulesEngine = e }
}

func WithHazardMonitor(m *hazard.Monitor) Option {
	return func(c *Config) { c.hazardMonitor = m }
}

func WithReviewBuilder(b *review.Builder) Option {
	return func(c *Config) { c.reviewBuilder = b }
}

func WithRuntimeLog(l *journal.Logger) Option {
	return func(c *Config) { c.runtimeLog = l }
}

func WithTelemetryCollector(tc *journal.TelemetryCollector) Option {
	return func(c *Config) { c.telemetryCollector = tc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.metrics = m }
}

func WithHub(h *eventbus.Hub) Option {
	return func(c *Config) { c.hub = h }
}
