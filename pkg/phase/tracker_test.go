package phase

import (
	"testing"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

func snapAt(t time.Time, onGround bool, iasKt, gsMS, vsFpm, throttle, park, elevM float64) flightmodel.Snapshot {
	return flightmodel.Snapshot{
		Timestamp:           t,
		OnGround:            onGround,
		IndicatedAirspeedKt: flightmodel.F64(iasKt),
		GroundspeedMS:       flightmodel.F64(gsMS),
		VerticalSpeedFpm:    flightmodel.F64(vsFpm),
		ThrottleRatio:       flightmodel.F64(throttle),
		ParkingBrakeRatio:   flightmodel.F64(park),
		ElevationM:          flightmodel.F64(elevM),
	}
}

func TestTrackerStartsInPreflight(t *testing.T) {
	tr := New(nil)
	if tr.Phase() != flightmodel.PhasePreflight {
		t.Fatalf("initial phase = %s, want PREFLIGHT", tr.Phase())
	}
}

func TestTrackerCommitsOnlyAfterDwell(t *testing.T) {
	tr := New(nil)
	base := time.Now()

	// Parked: stays PREFLIGHT candidate, already committed.
	tr.Update(snapAt(base, true, 0, 0, 0, 0, 1.0, 100))

	// Throttle up, starts rolling: candidate flips to TAXI_OUT but the
	// 3s dwell hasn't elapsed yet, so phase should not change immediately.
	st := tr.Update(snapAt(base.Add(500*time.Millisecond), true, 10, 5, 0, 0.5, 0, 100))
	if st.Changed {
		t.Fatalf("phase changed before dwell elapsed")
	}
	if tr.Phase() != flightmodel.PhasePreflight {
		t.Fatalf("phase = %s, want still PREFLIGHT before dwell", tr.Phase())
	}

	st = tr.Update(snapAt(base.Add(3500*time.Millisecond), true, 10, 5, 0, 0.5, 0, 100))
	if !st.Changed {
		t.Fatalf("expected phase change once dwell elapsed")
	}
	if tr.Phase() != flightmodel.PhaseTaxiOut {
		t.Fatalf("phase = %s, want TAXI_OUT", tr.Phase())
	}
}

func TestTrackerTakeoffRollRequiresSpeed(t *testing.T) {
	tr := New(nil)
	base := time.Now()
	tr.Update(snapAt(base, true, 50, 20, 0, 1.0, 0, 100))
	st := tr.Update(snapAt(base.Add(3*time.Second), true, 50, 20, 0, 1.0, 0, 100))
	if st.Phase != flightmodel.PhaseTakeoff {
		t.Fatalf("phase = %s, want TAKEOFF", st.Phase)
	}
}

func TestTrackerClimbAndCruiseByAGLAndVS(t *testing.T) {
	tr := New(nil)
	base := time.Now()
	// Establish a field elevation baseline while still on ground.
	tr.Update(snapAt(base, true, 0, 0, 0, 0, 1.0, 0))

	airborneClimb := flightmodel.Snapshot{
		Timestamp:           base.Add(5 * time.Second),
		OnGround:            false,
		IndicatedAirspeedKt: flightmodel.F64(80),
		GroundspeedMS:       flightmodel.F64(40),
		VerticalSpeedFpm:    flightmodel.F64(800),
		ElevationM:          flightmodel.F64(300), // ~984 ft AGL
	}
	tr.wasAirborne = true
	tr.Update(airborneClimb)
	// INITIAL_CLIMB is confirmed only once its 3 s dwell has elapsed.
	airborneClimb.Timestamp = base.Add(8 * time.Second)
	st := tr.Update(airborneClimb)
	if st.Phase != flightmodel.PhaseInitialClimb {
		t.Fatalf("phase = %s, want INITIAL_CLIMB", st.Phase)
	}

	cruise := airborneClimb
	cruise.Timestamp = base.Add(10 * time.Second)
	cruise.VerticalSpeedFpm = flightmodel.F64(0)
	cruise.ElevationM = flightmodel.F64(1200) // well above 3000ft AGL threshold scaled
	for i := 0; i < 6; i++ {
		cruise.Timestamp = cruise.Timestamp.Add(time.Second)
		st = tr.Update(cruise)
	}
	if st.Phase != flightmodel.PhaseCruise {
		t.Fatalf("phase = %s, want CRUISE", st.Phase)
	}
}

func TestTrackerLandingAfterAirborne(t *testing.T) {
	tr := New(nil)
	base := time.Now()
	tr.Update(snapAt(base, true, 0, 0, 0, 0, 1.0, 0))
	tr.wasAirborne = true

	onGroundFast := snapAt(base.Add(time.Second), true, 60, 25, -200, 0.2, 0, 0)
	st := tr.Update(onGroundFast)
	if st.Phase != flightmodel.PhaseLanding && tr.candidate != flightmodel.PhaseLanding {
		t.Fatalf("candidate = %s, want LANDING on fast ground roll after airborne", tr.candidate)
	}

	slow := snapAt(base.Add(5*time.Second), true, 10, 5, 0, 0, 0, 0)
	for i := 0; i < 4; i++ {
		slow.Timestamp = slow.Timestamp.Add(time.Second)
		st = tr.Update(slow)
	}
	if st.Phase != flightmodel.PhaseTaxiIn {
		t.Fatalf("phase = %s, want TAXI_IN once slowed after landing", st.Phase)
	}
}
