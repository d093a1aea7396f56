// Package supervisor composes the telemetry client, phase tracker,
// hazard monitor, rule engine, review builder, speech sink, and
// expert-team client into the one continuously-running tick loop that
// is the system's reason for existing: pull a snapshot, drive every
// evaluator against it in order, arbitrate speech, detect the
// shutdown/new-flight cycle, and journal every step.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/expert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
	"github.com/aerocfi/cfi-supervisor/pkg/hazard"
	"github.com/aerocfi/cfi-supervisor/pkg/journal"
	"github.com/aerocfi/cfi-supervisor/pkg/metrics"
	"github.com/aerocfi/cfi-supervisor/pkg/phase"
	"github.com/aerocfi/cfi-supervisor/pkg/review"
	"github.com/aerocfi/cfi-supervisor/pkg/rules"
	"github.com/aerocfi/cfi-supervisor/pkg/speech"
)

// ErrInvariant marks a condition the supervisor cannot recover from
// and that should terminate the process.
var ErrInvariant = errors.New("supervisor: invariant violated")

// TelemetrySource is the subset of telemetry.Client the supervisor
// depends on, so tests can supply a fake without a real UDP socket.
type TelemetrySource interface {
	Start(ctx context.Context) error
	Stop()
	Latest() (flightmodel.Snapshot, bool)
	Window(d time.Duration) []flightmodel.Snapshot
}

// Status is a snapshot of the supervisor's externally-visible state,
// served by pkg/httpapi's /status endpoint.
type Status struct {
	SessionID       string
	Running         bool
	Phase           flightmodel.Phase
	FlightIndex     int
	ShutdownLikely  bool
	FlightStartedAt time.Time
	LastTickAt      time.Time
	TicksProcessed  int64
}

// Supervisor owns the tick loop. Build one with New, then call Run.
type Supervisor struct {
	cfg Config

	// sessionID identifies one supervisor process run (not one flight
	// cycle — flightIndex does that) so every journaled event and
	// broadcast event from this run can be correlated by an external
	// consumer reading the NATS subject or the JSONL log across restarts.
	sessionID string

	telemetry TelemetrySource
	phase     *phase.Tracker
	rules     *rules.Engine
	hazard    *hazard.Monitor
	review    *review.Builder
	speech    *speech.Sink
	team      expert.Team

	runtimeLog   *journal.Logger
	telemetryLog *journal.TelemetryCollector
	metrics      *metrics.Metrics
	hub          *eventbus.Hub

	log *slog.Logger

	mu              sync.Mutex
	phaseState      flightmodel.PhaseState
	flightIndex     int
	flightStartedAt time.Time
	lastSnapshotTS  time.Time
	ticksProcessed  int64
	authSuppressed  bool
	running         bool

	// sessionBuffer, sessionFindings, sessionPhasePath, and
	// sessionAlertHistogram hold the current flight cycle's history:
	// the full-flight debrief downsamples sessionBuffer and augments its
	// ReviewWindow hints from the other three. All four are cleared on
	// a flight-cycle reset (see evaluateShutdownCycle).
	sessionBuffer         []flightmodel.Snapshot
	sessionFindings       []flightmodel.RuleFinding
	sessionPhasePath      []flightmodel.Phase
	sessionAlertHistogram map[string]int

	shutdown          *shutdownDetector
	shutdownDwellSince time.Time

	reviewResults  chan reviewOutcome
	variantUpdates chan map[string][]string
	profileUpdates chan flightmodel.HazardProfile
	stop           chan struct{}
	done           chan struct{}
}

type reviewOutcome struct {
	window   flightmodel.ReviewWindow
	decision expert.Decision
	err      error
	at       time.Time
}

// New builds a Supervisor. telemetrySrc, speechSink, and team are
// required; everything else has a sensible default and can be
// overridden with Options for tests (WithPhaseTracker et al., defined
// in deps.go).
func New(telemetrySrc TelemetrySource, speechSink *speech.Sink, team expert.Team, opts ...Option) *Supervisor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	phaseTracker := cfg.phaseTracker
	if phaseTracker == nil {
		phaseTracker = phase.New(phase.DefaultMinDwellSec)
	}
	rulesEngine := cfg.rulesEngine
	if rulesEngine == nil {
		rulesEngine = rules.New(cfg.EngineShutdownHoldSec)
	}
	hazardMonitor := cfg.hazardMonitor
	if hazardMonitor == nil {
		hazardMonitor = hazard.New(cfg.UrgentCooldownSec, flightmodel.NewDefaultHazardProfile())
	}
	reviewBuilder := cfg.reviewBuilder
	if reviewBuilder == nil {
		reviewBuilder = review.NewBuilder()
	}
	runtimeLog := cfg.runtimeLog
	if runtimeLog == nil {
		runtimeLog = journal.NewLogger("runtime.events.log.jsonl")
	}
	telemetryLog := cfg.telemetryCollector
	if telemetryLog == nil {
		telemetryLog = journal.NewTelemetryCollector(false, journal.NewLogger("telemetry.log.jsonl"))
	}

	s := &Supervisor{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		telemetry: telemetrySrc,
		speech:    speechSink,
		team:      team,
		log:       cfg.Logger,

		phase:  phaseTracker,
		rules:  rulesEngine,
		hazard: hazardMonitor,
		review: reviewBuilder,

		runtimeLog:   runtimeLog,
		telemetryLog: telemetryLog,
		metrics:      cfg.metrics,
		hub:          cfg.hub,

		phaseState:            flightmodel.PhaseState{Phase: flightmodel.PhasePreflight},
		flightIndex:           1,
		shutdown:              newShutdownDetector(),
		sessionAlertHistogram: make(map[string]int),

		reviewResults:  make(chan reviewOutcome, 4),
		variantUpdates: make(chan map[string][]string, 4),
		profileUpdates: make(chan flightmodel.HazardProfile, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	return s
}

// ApplyHazardProfile queues a freshly loaded or reloaded hazard profile
// for the tick loop to swap in. hazard.Monitor is not safe for
// concurrent use, so this never calls it directly: it hands the profile
// to Run's single-goroutine select loop, the same pattern variantUpdates
// uses for hazard phrase refreshes. One pending update waits in the
// channel's single buffered slot until Run drains it; if that slot is
// already full, the update is dropped and logged; the next reload will
// retry.
func (s *Supervisor) ApplyHazardProfile(profile flightmodel.HazardProfile) {
	select {
	case s.profileUpdates <- profile:
	default:
		s.log.Warn("supervisor: dropped hazard profile update, tick loop not ready or backlogged")
	}
}

// Status returns a thread-safe snapshot of the supervisor's current
// externally-visible state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionID:       s.sessionID,
		Running:         s.running,
		Phase:           s.phaseState.Phase,
		FlightIndex:     s.flightIndex,
		ShutdownLikely:  s.shutdown.debriefEmitted,
		FlightStartedAt: s.flightStartedAt,
		LastTickAt:      s.lastSnapshotTS,
		TicksProcessed:  s.ticksProcessed,
	}
}
