// Package rules implements the independent rule-engine state machine: its
// own phase taxonomy (which includes SHUTDOWN) and a fixed battery of
// severity-graded findings. It runs alongside, not beneath, package
// phase's tracker — the two consume the same snapshot stream for
// different purposes and never share state. See the design notes on
// "independent machines on the same input stream, not a hierarchy."
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/convert"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// EnginePhase is the rule engine's own phase taxonomy. It mirrors
// package phase's states plus MANEUVER, LANDING_ROLLOUT, and SHUTDOWN,
// which the speech-facing tracker does not track.
type EnginePhase string

const (
	EnginePhasePreflight      EnginePhase = "PRE_FLIGHT"
	EnginePhaseTaxiOut        EnginePhase = "TAXI_OUT"
	EnginePhaseTakeoffRoll    EnginePhase = "TAKEOFF_ROLL"
	EnginePhaseClimb          EnginePhase = "CLIMB"
	EnginePhaseCruise         EnginePhase = "CRUISE"
	EnginePhaseManeuver       EnginePhase = "MANEUVER"
	EnginePhaseDescent        EnginePhase = "DESCENT"
	EnginePhaseApproach       EnginePhase = "APPROACH"
	EnginePhaseLandingRollout EnginePhase = "LANDING_ROLLOUT"
	EnginePhaseTaxiIn         EnginePhase = "TAXI_IN"
	EnginePhaseShutdown       EnginePhase = "SHUTDOWN"
)

const (
	p0CooldownSec = 3.0
	p1CooldownSec = 8.0
	p2CooldownSec = 12.0

	steepTurnSustainSec  = 12.0
	slowFlightSustainSec = 12.0
	climbBandSustainSec  = 8.0

	// AIMaxFindingsPerEval bounds how many AI-sourced findings
	// NormalizeAIFindings accepts from a single expert-team review.
	AIMaxFindingsPerEval = 3

	defaultEngineShutdownHoldSec = 15.0
)

// Engine runs the independent rule-engine phase/finding state machine. Not
// safe for concurrent use.
type Engine struct {
	engineShutdownHoldSec float64

	phase              EnginePhase
	fieldElevationFtMSL *float64
	hadAirborne        bool
	shutdownConfirmed  bool

	previousOnGround         *bool
	previousVerticalSpeedFpm *float64

	climbOutViolationSince *time.Time

	steepTurnCandidateSince   *time.Time
	steepTurnReferenceAltFt   *float64

	slowFlightCandidateSince *time.Time
	slowFlightReferenceAltFt *float64

	levelReferenceAltFt     *float64
	levelReferenceHeadingDeg *float64

	stallEventStartedAt  *time.Time
	stallRecoverySeconds []float64

	shutdownCandidateSince *time.Time
}

// New builds an Engine. engineShutdownHoldSec is how long the stationary,
// engines-off condition must hold after an airborne segment before a
// SHUTDOWN phase is confirmed; 0 selects the 15s default.
func New(engineShutdownHoldSec float64) *Engine {
	if engineShutdownHoldSec <= 0 {
		engineShutdownHoldSec = defaultEngineShutdownHoldSec
	}
	return &Engine{
		engineShutdownHoldSec: engineShutdownHoldSec,
		phase:                 EnginePhasePreflight,
	}
}

// Phase returns the engine's current phase classification.
func (e *Engine) Phase() EnginePhase { return e.phase }

// Reset returns the engine to its just-built state, for a new flight
// cycle after a shutdown debrief.
func (e *Engine) Reset() {
	holdSec := e.engineShutdownHoldSec
	*e = Engine{
		engineShutdownHoldSec: holdSec,
		phase:                 EnginePhasePreflight,
	}
}

// HadAirborne reports whether the aircraft has left the ground at least
// once since the engine was constructed.
func (e *Engine) HadAirborne() bool { return e.hadAirborne }

// ShutdownConfirmed reports whether the engines-off dwell has elapsed.
func (e *Engine) ShutdownConfirmed() bool { return e.shutdownConfirmed }

// StallRecoverySeconds returns a copy of every recorded stall-warning
// duration, used by the debrief builder.
func (e *Engine) StallRecoverySeconds() []float64 {
	out := make([]float64, len(e.stallRecoverySeconds))
	copy(out, e.stallRecoverySeconds)
	return out
}

// Update advances the engine with one snapshot and returns any findings
// raised this tick.
func (e *Engine) Update(snap flightmodel.Snapshot) []flightmodel.RuleFinding {
	e.updateFieldElevation(snap)
	e.updateManeuverTrackers(snap)

	e.phase = e.detectPhase(snap)

	findings := e.evaluateRules(snap)

	e.updateShutdownState(snap)
	if e.shutdownConfirmed {
		e.phase = EnginePhaseShutdown
	}

	onGround := snap.OnGround
	e.previousOnGround = &onGround
	e.previousVerticalSpeedFpm = snap.VerticalSpeedFpm

	return findings
}

func (e *Engine) altitudeFtMSL(snap flightmodel.Snapshot) *float64 {
	if snap.ElevationM == nil {
		return nil
	}
	ft := *snap.ElevationM * 3.28084
	return &ft
}

func (e *Engine) aglFt(snap flightmodel.Snapshot) *float64 {
	alt := e.altitudeFtMSL(snap)
	if alt == nil || e.fieldElevationFtMSL == nil {
		return nil
	}
	agl := *alt - *e.fieldElevationFtMSL
	return &agl
}

func (e *Engine) updateFieldElevation(snap flightmodel.Snapshot) {
	alt := e.altitudeFtMSL(snap)
	if alt == nil {
		return
	}
	gs := groundspeedKt(snap)
	if snap.OnGround && gs < 40.0 {
		e.fieldElevationFtMSL = alt
	}
}

func (e *Engine) updateManeuverTrackers(snap flightmodel.Snapshot) {
	ts := snap.Timestamp
	bankDeg := absf(derefF(snap.RollDeg))
	agl := e.aglFt(snap)
	ias := snap.IndicatedAirspeedKt
	flaps := snap.FlapRatio
	vs := absf(derefF(snap.VerticalSpeedFpm))

	steepTurnCandidate := !snap.OnGround && agl != nil && *agl > 1500.0 && bankDeg >= 35.0 && bankDeg <= 60.0
	if steepTurnCandidate {
		if e.steepTurnCandidateSince == nil {
			e.steepTurnCandidateSince = &ts
			e.steepTurnReferenceAltFt = e.altitudeFtMSL(snap)
		}
	} else {
		e.steepTurnCandidateSince = nil
		e.steepTurnReferenceAltFt = nil
	}

	slowFlightCandidate := !snap.OnGround && ias != nil && *ias >= 40.0 && *ias <= 70.0 &&
		flaps != nil && *flaps > 0.2 && vs < 300.0
	if slowFlightCandidate {
		if e.slowFlightCandidateSince == nil {
			e.slowFlightCandidateSince = &ts
			e.slowFlightReferenceAltFt = e.altitudeFtMSL(snap)
		}
	} else {
		e.slowFlightCandidateSince = nil
		e.slowFlightReferenceAltFt = nil
	}
}

func (e *Engine) detectPhase(snap flightmodel.Snapshot) EnginePhase {
	if e.shutdownConfirmed {
		return EnginePhaseShutdown
	}

	gs := groundspeedKt(snap)
	ias := derefF(snap.IndicatedAirspeedKt)
	vs := derefF(snap.VerticalSpeedFpm)
	agl := e.aglFt(snap)

	steepTurnActive := e.isSteepTurnActive(snap.Timestamp)
	slowFlightActive := e.isSlowFlightActive(snap.Timestamp)

	if e.hadAirborne {
		if snap.OnGround {
			if gs > 15.0 {
				return EnginePhaseLandingRollout
			}
			return EnginePhaseTaxiIn
		}
		if steepTurnActive || slowFlightActive {
			return EnginePhaseManeuver
		}
		if agl != nil && *agl < 800.0 && vs < -200.0 {
			return EnginePhaseApproach
		}
		if vs > 300.0 {
			return EnginePhaseClimb
		}
		if vs < -300.0 {
			return EnginePhaseDescent
		}
		return EnginePhaseCruise
	}

	if !snap.OnGround {
		e.hadAirborne = true
		return EnginePhaseClimb
	}
	if ias >= 40.0 || gs >= 30.0 {
		return EnginePhaseTakeoffRoll
	}
	if gs >= 2.0 {
		return EnginePhaseTaxiOut
	}
	return EnginePhasePreflight
}

func (e *Engine) isSteepTurnActive(ts time.Time) bool {
	if e.steepTurnCandidateSince == nil {
		return false
	}
	return ts.Sub(*e.steepTurnCandidateSince).Seconds() >= steepTurnSustainSec
}

func (e *Engine) isSlowFlightActive(ts time.Time) bool {
	if e.slowFlightCandidateSince == nil {
		return false
	}
	return ts.Sub(*e.slowFlightCandidateSince).Seconds() >= slowFlightSustainSec
}

func (e *Engine) evaluateRules(snap flightmodel.Snapshot) []flightmodel.RuleFinding {
	var findings []flightmodel.RuleFinding
	phase := e.phase
	t := snap.Timestamp

	ias := snap.IndicatedAirspeedKt
	agl := e.aglFt(snap)
	vs := snap.VerticalSpeedFpm
	bank := absf(derefF(snap.RollDeg))
	gs := snap.GroundspeedKt()
	altitudeFt := e.altitudeFtMSL(snap)
	heading := snap.HeadingTrueDeg

	stallActive := snap.StallWarning != nil && *snap.StallWarning
	if stallActive {
		if e.stallEventStartedAt == nil {
			e.stallEventStartedAt = &t
		}
		findings = append(findings, finding("stall_warning", flightmodel.SeverityP0, phase,
			"Stall warning active. Reduce angle of attack and recover immediately.",
			t, p0CooldownSec, map[string]any{"stall_warning_active": true}))
	} else if e.stallEventStartedAt != nil {
		elapsed := t.Sub(*e.stallEventStartedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		e.stallRecoverySeconds = append(e.stallRecoverySeconds, elapsed)
		e.stallEventStartedAt = nil
	}

	if agl != nil && vs != nil && !snap.OnGround && *agl < 500.0 && *vs < -1200.0 {
		findings = append(findings, finding("low_agl_sink_rate", flightmodel.SeverityP0, phase,
			"Dangerous sink rate close to the ground.", t, p0CooldownSec,
			map[string]any{"agl_ft": *agl, "vertical_speed_fpm": *vs}))
	}

	if agl != nil && !snap.OnGround && *agl < 1000.0 && bank > 45.0 {
		findings = append(findings, finding("low_agl_excessive_bank", flightmodel.SeverityP0, phase,
			"Excessive bank angle at low altitude.", t, p0CooldownSec,
			map[string]any{"agl_ft": *agl, "bank_deg": bank}))
	}

	touchdown := e.previousOnGround != nil && !*e.previousOnGround && snap.OnGround
	prevVS := e.previousVerticalSpeedFpm
	if touchdown && prevVS != nil && *prevVS < -700.0 {
		findings = append(findings, finding("hard_landing", flightmodel.SeverityP0, phase,
			"Hard landing detected. Manage flare and descent rate earlier.", t, p0CooldownSec,
			map[string]any{"touchdown_vertical_speed_fpm": *prevVS}))
	}

	if (phase == EnginePhaseTaxiOut || phase == EnginePhaseTaxiIn) && gs != nil && *gs > 20.0 {
		findings = append(findings, finding("taxi_speed_high", flightmodel.SeverityP1, phase,
			"Taxi speed too high for checkride standards.", t, p1CooldownSec,
			map[string]any{"groundspeed_kt": *gs}))
	}

	climbOutViolation := phase == EnginePhaseClimb && agl != nil && *agl < 2000.0 &&
		ias != nil && (*ias < 60.0 || *ias > 90.0)
	if climbOutViolation {
		if e.climbOutViolationSince == nil {
			e.climbOutViolationSince = &t
		} else if t.Sub(*e.climbOutViolationSince).Seconds() >= climbBandSustainSec {
			findings = append(findings, finding("climb_out_airspeed_out_of_band", flightmodel.SeverityP1, phase,
				"Climb-out airspeed outside 60 to 90 knots.", t, p1CooldownSec,
				map[string]any{"indicated_airspeed_kt": *ias, "agl_ft": *agl}))
		}
	} else {
		e.climbOutViolationSince = nil
	}

	unstableApproach := phase == EnginePhaseApproach && agl != nil && *agl < 500.0 &&
		((ias != nil && (*ias < 55.0 || *ias > 95.0)) || (vs != nil && *vs < -1000.0))
	if unstableApproach {
		ev := map[string]any{"agl_ft": *agl}
		if ias != nil {
			ev["indicated_airspeed_kt"] = *ias
		}
		if vs != nil {
			ev["vertical_speed_fpm"] = *vs
		}
		findings = append(findings, finding("unstable_approach", flightmodel.SeverityP1, phase,
			"Unstable approach detected below 500 feet AGL.", t, p1CooldownSec, ev))
	}

	isLevelSegment := !snap.OnGround && vs != nil && absf(*vs) < 300.0 &&
		(phase == EnginePhaseCruise || phase == EnginePhaseManeuver)
	if isLevelSegment {
		if e.levelReferenceAltFt == nil {
			e.levelReferenceAltFt = altitudeFt
			e.levelReferenceHeadingDeg = heading
		} else {
			if altitudeFt != nil && e.levelReferenceAltFt != nil {
				if absf(*altitudeFt-*e.levelReferenceAltFt) > 150.0 {
					findings = append(findings, finding("level_altitude_wander", flightmodel.SeverityP2, phase,
						"Altitude wander exceeds 150 feet in a level segment.", t, p2CooldownSec,
						map[string]any{"altitude_ft_msl": *altitudeFt, "reference_altitude_ft_msl": *e.levelReferenceAltFt}))
				}
			}
			if heading != nil && e.levelReferenceHeadingDeg != nil {
				if headingDeltaDeg(*heading, *e.levelReferenceHeadingDeg) > 20.0 {
					findings = append(findings, finding("level_heading_wander", flightmodel.SeverityP2, phase,
						"Heading wander exceeds 20 degrees in a level segment.", t, p2CooldownSec,
						map[string]any{"heading_deg": *heading, "reference_heading_deg": *e.levelReferenceHeadingDeg}))
				}
			}
		}
	} else {
		e.levelReferenceAltFt = nil
		e.levelReferenceHeadingDeg = nil
	}

	if e.isSteepTurnActive(t) {
		referenceAlt := e.steepTurnReferenceAltFt
		bankError := absf(bank - 45.0)
		var altitudeDrift *float64
		if altitudeFt != nil && referenceAlt != nil {
			d := absf(*altitudeFt - *referenceAlt)
			altitudeDrift = &d
		}
		if bankError > 10.0 || (altitudeDrift != nil && *altitudeDrift > 100.0) {
			ev := map[string]any{"bank_deg": bank, "bank_error_deg": bankError}
			if altitudeDrift != nil {
				ev["altitude_drift_ft"] = *altitudeDrift
			}
			findings = append(findings, finding("steep_turn_quality", flightmodel.SeverityP2, phase,
				"Steep-turn quality outside target (bank/altitude control).", t, p2CooldownSec, ev))
		}
	}

	if e.isSlowFlightActive(t) {
		referenceAlt := e.slowFlightReferenceAltFt
		if altitudeFt != nil && referenceAlt != nil {
			drift := absf(*altitudeFt - *referenceAlt)
			if drift > 100.0 {
				findings = append(findings, finding("slow_flight_quality", flightmodel.SeverityP2, phase,
					"Slow-flight altitude control exceeds 100 feet drift.", t, p2CooldownSec,
					map[string]any{"altitude_drift_ft": drift}))
			}
		}
	}

	return findings
}

func (e *Engine) updateShutdownState(snap flightmodel.Snapshot) {
	if e.shutdownConfirmed {
		return
	}

	stationary := groundspeedKt(snap) < 2.0
	enginesOff := snap.EngineRunning != nil && !*snap.EngineRunning
	conditionsMet := e.hadAirborne && snap.OnGround && stationary && enginesOff

	if !conditionsMet {
		e.shutdownCandidateSince = nil
		return
	}

	if e.shutdownCandidateSince == nil {
		ts := snap.Timestamp
		e.shutdownCandidateSince = &ts
		return
	}

	if snap.Timestamp.Sub(*e.shutdownCandidateSince).Seconds() >= e.engineShutdownHoldSec {
		e.shutdownConfirmed = true
	}
}

func finding(ruleID string, severity flightmodel.Severity, phase EnginePhase, message string, ts time.Time, cooldownSec float64, evidence map[string]any) flightmodel.RuleFinding {
	return flightmodel.RuleFinding{
		RuleID:      ruleID,
		Severity:    severity,
		Phase:       string(phase),
		Message:     message,
		Evidence:    evidence,
		Timestamp:   ts,
		CooldownSec: cooldownSec,
	}
}

func headingDeltaDeg(a, b float64) float64 {
	diff := absf(convert.NormalizeHeading(a - b))
	if diff > 360.0-diff {
		return 360.0 - diff
	}
	return diff
}

func groundspeedKt(snap flightmodel.Snapshot) float64 {
	if snap.GroundspeedMS == nil {
		return 0
	}
	return convert.MetersPerSecondToKnots(*snap.GroundspeedMS)
}

func derefF(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var ruleIDCleaner = regexp.MustCompile(`[^a-z0-9_]+`)

// AIFinding is the shape a raw expert-team review result is decoded into
// before normalization; fields mirror what the review's JSON contains.
type AIFinding struct {
	RuleID      string
	Severity    string
	Message     string
	Evidence    map[string]any
	CooldownSec float64
}

// NormalizeAIFindings converts expert-team-suggested findings into
// flightmodel.RuleFinding values: it validates severity, dedupes by
// (rule_id, message), caps the accepted findings at AIMaxFindingsPerEval,
// and prefixes every rule ID with "ai_" so it can never collide with a
// built-in rule.
func NormalizeAIFindings(raw []AIFinding, phase EnginePhase, ts time.Time) []flightmodel.RuleFinding {
	var findings []flightmodel.RuleFinding
	seen := make(map[string]struct{})

	for _, item := range raw {
		if len(findings) >= AIMaxFindingsPerEval {
			break
		}
		severity, ok := parseSeverity(item.Severity)
		if !ok {
			continue
		}
		message := strings.TrimSpace(item.Message)
		if message == "" {
			continue
		}
		baseRuleID := normalizeRuleID(strings.TrimSpace(item.RuleID))
		if baseRuleID == "" {
			baseRuleID = fmt.Sprintf("suggested_%s", strings.ToLower(string(severity)))
		}

		key := baseRuleID + "\x00" + strings.ToLower(message)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		cooldown := item.CooldownSec
		if cooldown <= 0 {
			cooldown = defaultCooldownForSeverity(severity)
		}

		if len(message) > 220 {
			message = message[:220]
		}

		findings = append(findings, finding("ai_"+baseRuleID, severity, phase, message, ts, cooldown, item.Evidence))
	}
	return findings
}

func parseSeverity(v string) (flightmodel.Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case string(flightmodel.SeverityP0):
		return flightmodel.SeverityP0, true
	case string(flightmodel.SeverityP1):
		return flightmodel.SeverityP1, true
	case string(flightmodel.SeverityP2):
		return flightmodel.SeverityP2, true
	default:
		return "", false
	}
}

func defaultCooldownForSeverity(severity flightmodel.Severity) float64 {
	switch severity {
	case flightmodel.SeverityP0:
		return p0CooldownSec
	case flightmodel.SeverityP1:
		return p1CooldownSec
	default:
		return p2CooldownSec
	}
}

func normalizeRuleID(v string) string {
	cleaned := ruleIDCleaner.ReplaceAllString(strings.ToLower(v), "_")
	return strings.Trim(cleaned, "_")
}
