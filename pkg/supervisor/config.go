package supervisor

import (
	"log/slog"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/hazard"
	"github.com/aerocfi/cfi-supervisor/pkg/journal"
	"github.com/aerocfi/cfi-supervisor/pkg/metrics"
	"github.com/aerocfi/cfi-supervisor/pkg/phase"
	"github.com/aerocfi/cfi-supervisor/pkg/review"
	"github.com/aerocfi/cfi-supervisor/pkg/rules"
)

// Config holds every tunable the supervisor's tick loop, retry policy,
// and flight-cycle detector need. Built via defaultConfig and
// functional Options, the same shape as pkg/telemetry.Config and the
// teacher's pkg/manager/config.go.
type Config struct {
	Logger *slog.Logger

	PollInterval time.Duration

	NonurgentSpeakEnabled           bool
	DryRun                          bool
	ReviewWindowSec                 float64
	ReviewTickSec                   float64
	UrgentCooldownSec               float64
	NonurgentSuppressAfterUrgentSec float64
	HazardPhraseRefreshSec          float64

	ShutdownDetectDwellSec float64
	EngineShutdownHoldSec  float64
	MaxFlightDuration      time.Duration // 0 = unbounded

	StartRetryInterval time.Duration
	StartMaxRetries    int // 0 = infinite

	ExpertReviewTimeout time.Duration

	// Component overrides, set via the Options in deps.go. New() fills
	// in package defaults for any left nil.
	phaseTracker       *phase.Tracker
	rulesEngine        *rules.Engine
	hazardMonitor      *hazard.Monitor
	reviewBuilder      *review.Builder
	runtimeLog         *journal.Logger
	telemetryCollector *journal.TelemetryCollector
	metrics            *metrics.Metrics
	hub                *eventbus.Hub
}

// Option configures a Config.
type Option func(*Config)

func WithLogger(log *slog.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

func WithNonurgentSpeakEnabled(enabled bool) Option {
	return func(c *Config) { c.NonurgentSpeakEnabled = enabled }
}

func WithDryRun(enabled bool) Option {
	return func(c *Config) { c.DryRun = enabled }
}

func WithReviewWindowSec(sec float64) Option {
	return func(c *Config) { c.ReviewWindowSec = sec }
}

func WithReviewTickSec(sec float64) Option {
	return func(c *Config) { c.ReviewTickSec = sec }
}

func WithUrgentCooldownSec(sec float64) Option {
	return func(c *Config) { c.UrgentCooldownSec = sec }
}

func WithEngineShutdownHoldSec(sec float64) Option {
	return func(c *Config) { c.EngineShutdownHoldSec = sec }
}

func WithNonurgentSuppressAfterUrgentSec(sec float64) Option {
	return func(c *Config) { c.NonurgentSuppressAfterUrgentSec = sec }
}

func WithHazardPhraseRefreshSec(sec float64) Option {
	return func(c *Config) { c.HazardPhraseRefreshSec = sec }
}

func WithShutdownDetectDwellSec(sec float64) Option {
	return func(c *Config) { c.ShutdownDetectDwellSec = sec }
}

func WithMaxFlightDuration(d time.Duration) Option {
	return func(c *Config) { c.MaxFlightDuration = d }
}

func WithStartRetryPolicy(interval time.Duration, maxRetries int) Option {
	return func(c *Config) {
		c.StartRetryInterval = interval
		c.StartMaxRetries = maxRetries
	}
}

func WithExpertReviewTimeout(d time.Duration) Option {
	return func(c *Config) { c.ExpertReviewTimeout = d }
}

func defaultConfig() Config {
	return Config{
		Logger:                          slog.Default(),
		PollInterval:                    50 * time.Millisecond,
		NonurgentSpeakEnabled:           true,
		DryRun:                          false,
		ReviewWindowSec:                 30.0,
		ReviewTickSec:                   10.0,
		UrgentCooldownSec:               8.0,
		NonurgentSuppressAfterUrgentSec: 12.0,
		HazardPhraseRefreshSec:          90.0,
		ShutdownDetectDwellSec:          8.0,
		EngineShutdownHoldSec:           15.0,
		MaxFlightDuration:               0,
		StartRetryInterval:              3 * time.Second,
		StartMaxRetries:                 0,
		ExpertReviewTimeout:             120 * time.Second,
	}
}
