package supervisor

import "github.com/aerocfi/cfi-supervisor/pkg/flightmodel"

// shutdownDetector tracks the supervisor-level shutdown/new-flight
// cycle. It is deliberately independent of phase.Tracker's own
// airborne latch and rules.Engine's own shutdown-hold state: three
// machines observe the same snapshot stream without sharing state,
// matching the rest of this system's "independent machines" design.
type shutdownDetector struct {
	hadAirborne    bool
	debriefEmitted bool
}

// newShutdownDetector returns a detector ready for flight #1.
func newShutdownDetector() *shutdownDetector {
	return &shutdownDetector{}
}

// reset clears all state for a new flight cycle, called after
// new-flight activity is observed following a debrief.
func (d *shutdownDetector) reset() {
	*d = shutdownDetector{}
}

// observeAirborne latches hadAirborne the first time snap reports the
// aircraft off the ground, for the remainder of the flight cycle.
func (d *shutdownDetector) observeAirborne(snap flightmodel.Snapshot) {
	if !snap.OnGround {
		d.hadAirborne = true
	}
}

// shutdownConditionHolds reports whether the shutdown dwell condition
// holds on this tick; it does not itself update the airborne latch.
func (d *shutdownDetector) shutdownConditionHolds(snap flightmodel.Snapshot) bool {
	if !snap.OnGround {
		return false
	}
	if !d.hadAirborne {
		return false
	}

	gs := derefOr(snap.GroundspeedKt(), 999)
	ias := derefOr(snap.IndicatedAirspeedKt, 999)
	throttle := derefOr(snap.ThrottleRatio, 1)

	if gs >= 2 || ias >= 8 || throttle >= 0.12 {
		return false
	}

	return enginesOff(snap)
}

// enginesOff implements the fallback chain from the shutdown-detection
// rule: prefer the direct engine-running flag, fall back to RPM, then
// to parking brake, since any of the three may be unreported.
func enginesOff(snap flightmodel.Snapshot) bool {
	if snap.EngineRunning != nil {
		return !*snap.EngineRunning
	}
	if snap.EngineRpm != nil {
		return *snap.EngineRpm <= 200
	}
	if snap.ParkingBrakeRatio != nil {
		return *snap.ParkingBrakeRatio >= 0.5
	}
	return false
}

// isNewFlightActivity reports whether snap indicates the aircraft has
// started a new flight cycle after a shutdown debrief was emitted.
func isNewFlightActivity(snap flightmodel.Snapshot) bool {
	if !snap.OnGround {
		return true
	}

	throttle := derefOr(snap.ThrottleRatio, 0)
	gs := derefOr(snap.GroundspeedKt(), 0)
	ias := derefOr(snap.IndicatedAirspeedKt, 0)
	parkingBrake := derefOr(snap.ParkingBrakeRatio, 1)

	engineOn := snap.EngineRunning != nil && *snap.EngineRunning
	if !engineOn {
		return false
	}

	if throttle > 0.22 || gs > 3 || ias > 10 {
		return true
	}
	if parkingBrake < 0.2 && gs > 1.5 {
		return true
	}
	return false
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
