// Package config loads the runtime supervisor's configuration from
// environment variables (mirroring the CFI_* / XPLANE_* names the
// original Python implementation used) and the optional YAML hazard
// profile overlay with fsnotify-driven hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RuntimeConfig holds every tunable the supervisor needs at startup.
// Built by FromEnv; never mutated in place after that.
type RuntimeConfig struct {
	XPlaneHost             string
	XPlanePort             int
	XPlaneLocalPort        int
	XPlaneRRefHz           int
	XPlaneRetrySec         float64
	XPlaneStartMaxRetries  int
	StartupBootstrapWaitSec float64

	ExpertBaseURL    string
	ExpertSigningKey string
	ExpertIssuer     string

	ReviewWindowSec                 float64
	ReviewTickSec                   float64
	UrgentCooldownSec               float64
	NonurgentCooldownSec            float64
	NonurgentSuppressAfterUrgentSec float64
	ShutdownDetectDwellSec          float64
	HazardPhraseRefreshSec          float64
	HazardPhraseRuntimeEnabled      bool

	TelemetryEnabled      bool
	RuntimeEventsLogPath  string
	TelemetryLogPath      string

	HazardProfilePath string

	HTTPAddr       string
	AllowedOrigins []string
	NATSURL        string
	NATSSubject    string

	DryRunSpeech   bool
	NoSpeak        bool
	NoNonurgent    bool
	MaxFlightHours float64
}

// FromEnv reads every field from the environment, falling back to the
// same defaults as the original runtime.
func FromEnv() RuntimeConfig {
	return RuntimeConfig{
		XPlaneHost:              stringEnv("XPLANE_UDP_HOST", "127.0.0.1"),
		XPlanePort:              intEnv("XPLANE_UDP_PORT", 49000),
		XPlaneLocalPort:         intEnv("XPLANE_UDP_LOCAL_PORT", 49001),
		XPlaneRRefHz:            intEnv("XPLANE_RREF_HZ", 10),
		XPlaneRetrySec:          floatEnv("XPLANE_RETRY_SEC", 3.0),
		XPlaneStartMaxRetries:   intEnv("XPLANE_START_MAX_RETRIES", 0),
		StartupBootstrapWaitSec: floatEnv("CFI_STARTUP_BOOTSTRAP_WAIT_SEC", 8.0),

		ExpertBaseURL:    stringEnv("CFI_EXPERT_BASE_URL", "http://127.0.0.1:8765"),
		ExpertSigningKey: stringEnv("CFI_EXPERT_SIGNING_KEY", ""),
		ExpertIssuer:     stringEnv("CFI_EXPERT_ISSUER", "cfi-supervisor"),

		ReviewWindowSec:                 floatEnv("CFI_REVIEW_WINDOW_SEC", 30.0),
		ReviewTickSec:                   floatEnv("CFI_REVIEW_TICK_SEC", 10.0),
		UrgentCooldownSec:               floatEnv("CFI_URGENT_COOLDOWN_SEC", 8.0),
		NonurgentCooldownSec:            floatEnv("CFI_NONURGENT_COOLDOWN_SEC", 45.0),
		NonurgentSuppressAfterUrgentSec: floatEnv("CFI_NONURGENT_SUPPRESS_AFTER_URGENT_SEC", 12.0),
		ShutdownDetectDwellSec:          floatEnv("CFI_SHUTDOWN_DETECT_DWELL_SEC", 15.0),
		HazardPhraseRefreshSec:          floatEnv("CFI_HAZARD_PHRASE_REFRESH_SEC", 90.0),
		HazardPhraseRuntimeEnabled:      boolEnv("CFI_HAZARD_PHRASE_RUNTIME_ENABLED", true),

		TelemetryEnabled:     boolEnv("CFI_TELEMETRY_ENABLED", false),
		RuntimeEventsLogPath: stringEnv("CFI_RUNTIME_EVENTS_LOG_PATH", "runtime.events.log.jsonl"),
		TelemetryLogPath:     stringEnv("CFI_TELEMETRY_LOG_PATH", "telemetry.log.jsonl"),

		HazardProfilePath: stringEnv("CFI_HAZARD_PROFILE_PATH", ""),

		HTTPAddr:       stringEnv("CFI_HTTP_ADDR", ":8766"),
		AllowedOrigins: splitCSV(stringEnv("CFI_ALLOWED_ORIGINS", "http://localhost:5173")),
		NATSURL:        stringEnv("CFI_NATS_URL", ""),
		NATSSubject:    stringEnv("CFI_NATS_SUBJECT", "cfi.events"),

		DryRunSpeech:   boolEnv("CFI_DRY_RUN", false),
		NoSpeak:        boolEnv("CFI_NO_SPEAK", false),
		NoNonurgent:    boolEnv("CFI_NO_NONURGENT_SPEAK", false),
		MaxFlightHours: floatEnv("CFI_MAX_FLIGHT_HOURS", 0),
	}
}

// Validate reports the first configuration error found, mirroring the
// original implementation's fail-fast startup checks.
func (c RuntimeConfig) Validate() error {
	switch {
	case c.XPlaneHost == "":
		return fmt.Errorf("config: XPLANE_UDP_HOST is required")
	case c.XPlanePort <= 0:
		return fmt.Errorf("config: XPLANE_UDP_PORT must be > 0")
	case c.XPlaneLocalPort <= 0:
		return fmt.Errorf("config: XPLANE_UDP_LOCAL_PORT must be > 0")
	case c.XPlaneRRefHz <= 0:
		return fmt.Errorf("config: XPLANE_RREF_HZ must be > 0")
	case c.XPlaneRetrySec <= 0:
		return fmt.Errorf("config: XPLANE_RETRY_SEC must be > 0")
	case c.XPlaneStartMaxRetries < 0:
		return fmt.Errorf("config: XPLANE_START_MAX_RETRIES must be >= 0")
	case c.ReviewWindowSec <= 0 || c.ReviewTickSec <= 0:
		return fmt.Errorf("config: CFI_REVIEW_WINDOW_SEC and CFI_REVIEW_TICK_SEC must be > 0")
	case c.ShutdownDetectDwellSec <= 0:
		return fmt.Errorf("config: CFI_SHUTDOWN_DETECT_DWELL_SEC must be > 0")
	case c.HazardPhraseRefreshSec <= 0:
		return fmt.Errorf("config: CFI_HAZARD_PHRASE_REFRESH_SEC must be > 0")
	}
	return nil
}

// ReviewWindowDuration converts ReviewWindowSec to a time.Duration.
func (c RuntimeConfig) ReviewWindowDuration() time.Duration {
	return time.Duration(c.ReviewWindowSec * float64(time.Second))
}

// ReviewTickDuration converts ReviewTickSec to a time.Duration.
func (c RuntimeConfig) ReviewTickDuration() time.Duration {
	return time.Duration(c.ReviewTickSec * float64(time.Second))
}

func stringEnv(name, fallback string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	return v
}

func boolEnv(name string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func intEnv(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func floatEnv(name string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
