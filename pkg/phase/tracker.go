// Package phase implements the nine-state flight phase tracker that gates
// hazard monitoring and speech coaching. It runs independently of the
// rule engine's own phase detection in package rules: the two machines
// read the same snapshot stream but serve different consumers and are
// never reconciled against each other.
package phase

import (
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// DefaultMinDwellSec is the minimum time a candidate phase must hold
// before the tracker commits to it, keyed by candidate phase.
var DefaultMinDwellSec = map[flightmodel.Phase]float64{
	flightmodel.PhasePreflight:    3.0,
	flightmodel.PhaseTaxiOut:      3.0,
	flightmodel.PhaseTakeoff:      2.0,
	flightmodel.PhaseInitialClimb: 3.0,
	flightmodel.PhaseCruise:       5.0,
	flightmodel.PhaseDescent:      4.0,
	flightmodel.PhaseApproach:     3.0,
	flightmodel.PhaseLanding:      1.0,
	flightmodel.PhaseTaxiIn:       3.0,
}

const defaultDwellFallbackSec = 3.0

// Tracker holds the phase state machine. Zero value is not usable; build
// with New.
type Tracker struct {
	minDwellSec map[flightmodel.Phase]float64

	phase          flightmodel.Phase
	phaseStartedAt time.Time
	candidate      flightmodel.Phase
	candidateSince time.Time
	haveStarted    bool

	fieldElevationM *float64
	wasAirborne     bool
}

// New builds a Tracker starting in PREFLIGHT. A nil dwell table falls
// back to DefaultMinDwellSec.
func New(minDwellSec map[flightmodel.Phase]float64) *Tracker {
	if minDwellSec == nil {
		minDwellSec = DefaultMinDwellSec
	}
	return &Tracker{
		minDwellSec: minDwellSec,
		phase:       flightmodel.PhasePreflight,
		candidate:   flightmodel.PhasePreflight,
	}
}

// Phase returns the tracker's current committed phase.
func (t *Tracker) Phase() flightmodel.Phase { return t.phase }

// Reset returns the tracker to its just-built state, for a new flight
// cycle after a shutdown debrief.
func (t *Tracker) Reset() {
	minDwellSec := t.minDwellSec
	*t = Tracker{
		minDwellSec: minDwellSec,
		phase:       flightmodel.PhasePreflight,
		candidate:   flightmodel.PhasePreflight,
	}
}

// Update advances the tracker with one snapshot and returns the resulting
// phase state, including whether this tick committed a phase change.
func (t *Tracker) Update(snap flightmodel.Snapshot) flightmodel.PhaseState {
	if !t.haveStarted {
		t.phaseStartedAt = snap.Timestamp
		t.candidateSince = snap.Timestamp
		t.haveStarted = true
	}

	ias := deref(snap.IndicatedAirspeedKt)
	gsKt := deref(snap.GroundspeedMS) * 1.94384

	if snap.OnGround && snap.ElevationM != nil && gsKt < 25 {
		elev := *snap.ElevationM
		t.fieldElevationM = &elev
	}
	if !snap.OnGround && ias >= 60 {
		t.wasAirborne = true
	}

	candidate := t.determineCandidate(snap)
	if candidate != t.candidate {
		t.candidate = candidate
		t.candidateSince = snap.Timestamp
	}

	dwellRequired, ok := t.minDwellSec[candidate]
	if !ok {
		dwellRequired = defaultDwellFallbackSec
	}
	dwell := snap.Timestamp.Sub(t.candidateSince).Seconds()
	if dwell < 0 {
		dwell = 0
	}

	changed := false
	previous := t.phase
	if candidate != t.phase && dwell >= dwellRequired {
		t.phase = candidate
		t.phaseStartedAt = snap.Timestamp
		changed = true
	}

	var confidence float64
	if candidate == t.phase {
		confidence = 1.0
	} else {
		denom := dwellRequired
		if denom < 0.1 {
			denom = 0.1
		}
		confidence = dwell / denom
		if confidence > 0.99 {
			confidence = 0.99
		}
	}

	state := flightmodel.PhaseState{
		Phase:      t.phase,
		Confidence: confidence,
		Changed:    changed,
	}
	if changed {
		state.PreviousPhase = previous
		state.ChangedAtEpoch = snap.Timestamp
	}
	return state
}

func (t *Tracker) determineCandidate(snap flightmodel.Snapshot) flightmodel.Phase {
	ias := deref(snap.IndicatedAirspeedKt)
	gsKt := deref(snap.GroundspeedMS) * 1.94384
	vs := deref(snap.VerticalSpeedFpm)
	throttle := deref(snap.ThrottleRatio)
	park := deref(snap.ParkingBrakeRatio)
	agl := snap.AGLFeet(t.fieldElevationM)

	if snap.OnGround {
		if t.wasAirborne {
			if gsKt > 40 || ias > 45 {
				return flightmodel.PhaseLanding
			}
			return flightmodel.PhaseTaxiIn
		}
		if gsKt < 2 && ias < 5 && throttle < 0.2 && park > 0.3 {
			return flightmodel.PhasePreflight
		}
		if gsKt >= 35 && ias >= 40 {
			return flightmodel.PhaseTakeoff
		}
		return flightmodel.PhaseTaxiOut
	}

	if agl == nil {
		switch {
		case vs > 300:
			return flightmodel.PhaseInitialClimb
		case vs < -300:
			return flightmodel.PhaseDescent
		default:
			return flightmodel.PhaseCruise
		}
	}
	aglFt := *agl

	switch {
	case aglFt < 250 && vs < -150 && ias > 55:
		return flightmodel.PhaseLanding
	case aglFt <= 2500 && vs < -400:
		return flightmodel.PhaseApproach
	case vs > 300 && aglFt < 3000:
		return flightmodel.PhaseInitialClimb
	case vs < -300 && aglFt > 2500:
		return flightmodel.PhaseDescent
	case absf(vs) < 400 && aglFt >= 3000:
		return flightmodel.PhaseCruise
	}

	switch t.phase {
	case flightmodel.PhaseTakeoff, flightmodel.PhaseInitialClimb:
		return flightmodel.PhaseInitialClimb
	case flightmodel.PhaseApproach, flightmodel.PhaseLanding:
		return flightmodel.PhaseApproach
	default:
		return flightmodel.PhaseCruise
	}
}

func deref(v *float64) float64 {
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
