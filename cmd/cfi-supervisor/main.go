// Command cfi-supervisor runs the autonomous flight-instructor runtime:
// it connects to the simulator's UDP telemetry feed, drives the phase
// tracker, hazard monitor, rule engine, and review builder against every
// snapshot, and arbitrates spoken coaching through an expert-team HTTP
// collaborator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aerocfi/cfi-supervisor/pkg/config"
	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/expert"
	"github.com/aerocfi/cfi-supervisor/pkg/httpapi"
	"github.com/aerocfi/cfi-supervisor/pkg/metrics"
	"github.com/aerocfi/cfi-supervisor/pkg/speech"
	"github.com/aerocfi/cfi-supervisor/pkg/supervisor"
	"github.com/aerocfi/cfi-supervisor/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cfi-supervisor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		durationSec      = flag.Float64("duration-sec", 0, "stop after this many seconds (0 = run until signaled)")
		noNonurgentSpeak = flag.Bool("no-nonurgent-speak", false, "disable non-urgent review coaching speech")
		dryRun           = flag.Bool("dry-run", false, "advance speech cooldowns without calling the speech endpoint")
		pollSec          = flag.Float64("poll-sec", 0, "telemetry poll interval in seconds (0 = use default)")
		noSpeak          = flag.Bool("no-speak", false, "disable all speech, urgent and non-urgent")
		maxFlightHours   = flag.Float64("max-flight-hours", 0, "force-stop after this many hours of flight time (0 = unbounded)")
		hazardConfigPath = flag.String("config", "", "path to a YAML hazard profile overlay, hot-reloaded on change")
		httpAddr         = flag.String("http-addr", "", "HTTP bind address for /status, /metrics, /events/ws (empty disables the server)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := config.FromEnv()
	if *hazardConfigPath != "" {
		cfg.HazardProfilePath = *hazardConfigPath
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *dryRun {
		cfg.DryRunSpeech = true
	}
	if *noSpeak {
		cfg.NoSpeak = true
	}
	if *noNonurgentSpeak {
		cfg.NoNonurgent = true
	}
	if *maxFlightHours > 0 {
		cfg.MaxFlightHours = *maxFlightHours
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hub := eventbus.NewHub(logger)
	if cfg.NATSURL != "" {
		pub, err := eventbus.NewNATSPublisher(eventbus.NATSPublisherConfig{
			URL:     cfg.NATSURL,
			Subject: cfg.NATSSubject,
		})
		if err != nil {
			logger.Warn("nats publisher unavailable, continuing without it", "error", err)
		} else {
			defer pub.Close()
			hub = eventbus.NewHub(logger, pub)
		}
	}

	telemetryClient := telemetry.New(
		telemetry.WithHostPort(cfg.XPlaneHost, cfg.XPlanePort),
		telemetry.WithLocalPort(cfg.XPlaneLocalPort),
		telemetry.WithRateHz(cfg.XPlaneRRefHz),
		telemetry.WithReviewWindowSec(cfg.ReviewWindowSec),
		telemetry.WithLogger(logger),
	)

	var speaker speech.Speaker
	if cfg.DryRunSpeech || cfg.NoSpeak {
		speaker = speech.SpeakerFunc(func(context.Context, string) error { return nil })
	} else {
		speaker = speech.NewHTTPSpeaker(cfg.ExpertBaseURL+"/v1/speak", 5*time.Second)
	}
	speechSink := speech.New(speaker, cfg.UrgentCooldownSec, cfg.NonurgentCooldownSec, cfg.DryRunSpeech || cfg.NoSpeak)

	team := expert.NewHTTPTeam(expert.Config{
		BaseURL:    cfg.ExpertBaseURL,
		SigningKey: []byte(cfg.ExpertSigningKey),
		Issuer:     cfg.ExpertIssuer,
		Subject:    "cfi-supervisor",
	})

	supOpts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithNonurgentSpeakEnabled(!cfg.NoNonurgent && !cfg.NoSpeak),
		supervisor.WithDryRun(cfg.DryRunSpeech),
		supervisor.WithReviewWindowSec(cfg.ReviewWindowSec),
		supervisor.WithReviewTickSec(cfg.ReviewTickSec),
		supervisor.WithUrgentCooldownSec(cfg.UrgentCooldownSec),
		supervisor.WithNonurgentSuppressAfterUrgentSec(cfg.NonurgentSuppressAfterUrgentSec),
		supervisor.WithHazardPhraseRefreshSec(cfg.HazardPhraseRefreshSec),
		supervisor.WithShutdownDetectDwellSec(cfg.ShutdownDetectDwellSec),
		supervisor.WithStartRetryPolicy(time.Duration(cfg.XPlaneRetrySec*float64(time.Second)), cfg.XPlaneStartMaxRetries),
		supervisor.WithMetrics(m),
		supervisor.WithHub(hub),
	}
	if *pollSec > 0 {
		supOpts = append(supOpts, supervisor.WithPollInterval(time.Duration(*pollSec*float64(time.Second))))
	}
	sup := supervisor.New(telemetryClient, speechSink, team, supOpts...)

	if cfg.HazardProfilePath != "" {
		profile, err := config.LoadHazardProfileYAML(cfg.HazardProfilePath)
		if err != nil {
			logger.Warn("hazard profile overlay failed to load, using defaults", "path", cfg.HazardProfilePath, "error", err)
		} else {
			sup.ApplyHazardProfile(profile)
		}
		watcher := config.NewHazardProfileWatcher(cfg.HazardProfilePath, logger, sup.ApplyHazardProfile)
		if err := watcher.Start(); err != nil {
			logger.Warn("hazard profile watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		router := httpapi.NewRouter(httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Hub:            hub,
			Status:         statusAdapter{sup},
			Registry:       registry,
		})
		httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: router}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server stopped", "error", err)
			}
		}()
		defer httpServer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var duration time.Duration
	if *durationSec > 0 {
		duration = time.Duration(*durationSec * float64(time.Second))
	} else if cfg.MaxFlightHours > 0 {
		duration = time.Duration(cfg.MaxFlightHours * float64(time.Hour))
	}

	return sup.Run(ctx, duration)
}

// statusAdapter converts supervisor.Status to httpapi.Status: the two
// packages deliberately don't share a type, so httpapi never imports
// supervisor and the two can be tested in isolation.
type statusAdapter struct {
	sup *supervisor.Supervisor
}

func (a statusAdapter) Status() httpapi.Status {
	st := a.sup.Status()
	return httpapi.Status{
		SessionID:       st.SessionID,
		Running:         st.Running,
		Phase:           st.Phase,
		ShutdownLikely:  st.ShutdownLikely,
		FlightStartedAt: st.FlightStartedAt,
		LastTickAt:      st.LastTickAt,
		TicksProcessed:  st.TicksProcessed,
	}
}

