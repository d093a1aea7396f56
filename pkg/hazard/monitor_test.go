package hazard

import (
	"testing"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

func airborneSnap(ias, vs, roll, elev float64, stall bool) flightmodel.Snapshot {
	return flightmodel.Snapshot{
		Timestamp:           time.Now(),
		OnGround:            false,
		IndicatedAirspeedKt: flightmodel.F64(ias),
		VerticalSpeedFpm:    flightmodel.F64(vs),
		RollDeg:             flightmodel.F64(roll),
		ElevationM:          flightmodel.F64(elev),
		StallWarning:        flightmodel.B(stall),
		GroundspeedMS:       flightmodel.F64(0),
	}
}

func TestEvaluateStallWarningAlwaysAlerts(t *testing.T) {
	m := New(3.0, flightmodel.NewDefaultHazardProfile())
	snap := airborneSnap(120, 0, 0, 500, true)
	alerts := m.Evaluate(snap, flightmodel.PhaseState{Phase: flightmodel.PhaseCruise})
	if len(alerts) != 1 || alerts[0].AlertID != "stall_or_low_speed" {
		t.Fatalf("alerts = %+v, want single stall_or_low_speed alert", alerts)
	}
}

func TestEvaluateExcessiveSinkRequiresLowAGL(t *testing.T) {
	m := New(3.0, flightmodel.NewDefaultHazardProfile())
	m.fieldElevationM = flightmodel.F64(0)

	high := airborneSnap(90, -2000, 0, 2000, false)
	if alerts := m.Evaluate(high, flightmodel.PhaseState{Phase: flightmodel.PhaseDescent}); len(alerts) != 0 {
		t.Fatalf("alerts at high AGL = %+v, want none", alerts)
	}

	low := airborneSnap(90, -2000, 0, 200, false)
	alerts := m.Evaluate(low, flightmodel.PhaseState{Phase: flightmodel.PhaseDescent})
	found := false
	for _, a := range alerts {
		if a.AlertID == "excessive_sink_low_alt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("alerts at low AGL = %+v, want excessive_sink_low_alt", alerts)
	}
}

func TestEvaluateDisabledRuleNeverFires(t *testing.T) {
	profile := flightmodel.NewDefaultHazardProfile()
	delete(profile.EnabledRules, "stall_or_low_speed")
	m := New(3.0, profile)
	snap := airborneSnap(120, 0, 0, 500, true)
	alerts := m.Evaluate(snap, flightmodel.PhaseState{Phase: flightmodel.PhaseCruise})
	for _, a := range alerts {
		if a.AlertID == "stall_or_low_speed" {
			t.Fatalf("disabled rule fired: %+v", a)
		}
	}
}

func TestEvaluateTaxiSpeedSuppressedDuringTakeoffRoll(t *testing.T) {
	m := New(3.0, flightmodel.NewDefaultHazardProfile())
	snap := flightmodel.Snapshot{
		Timestamp:           time.Now(),
		OnGround:            true,
		IndicatedAirspeedKt: flightmodel.F64(45),
		GroundspeedMS:       flightmodel.F64(20), // ~38.9kt
		ThrottleRatio:       flightmodel.F64(0.9),
		ElevationM:          flightmodel.F64(0),
	}
	alerts := m.Evaluate(snap, flightmodel.PhaseState{Phase: flightmodel.PhaseTaxiOut})
	if len(alerts) != 0 {
		t.Fatalf("alerts during takeoff roll = %+v, want none (suppressed)", alerts)
	}
}

func TestEvaluateTaxiInWaitsForRolloutClear(t *testing.T) {
	m := New(3.0, flightmodel.NewDefaultHazardProfile())
	fast := flightmodel.Snapshot{
		Timestamp:           time.Now(),
		OnGround:            true,
		IndicatedAirspeedKt: flightmodel.F64(50),
		GroundspeedMS:       flightmodel.F64(20), // ~38.9kt > 30kt limit
		ElevationM:          flightmodel.F64(0),
	}
	alerts := m.Evaluate(fast, flightmodel.PhaseState{Phase: flightmodel.PhaseTaxiIn})
	if len(alerts) != 0 {
		t.Fatalf("alerts before rollout clear = %+v, want none", alerts)
	}

	slow := fast
	slow.GroundspeedMS = flightmodel.F64(5)
	slow.IndicatedAirspeedKt = flightmodel.F64(10)
	m.Evaluate(slow, flightmodel.PhaseState{Phase: flightmodel.PhaseTaxiIn})
	if !m.taxiInRolloutClear {
		t.Fatalf("expected rollout clear flag to latch once below threshold")
	}
}

func TestNormalizePhraseAddsPunctuationAndCollapsesWhitespace(t *testing.T) {
	got := normalizePhrase("  slow   down now  ")
	if got != "slow down now." {
		t.Fatalf("normalizePhrase() = %q, want %q", got, "slow down now.")
	}
}

func TestNormalizePhraseTruncatesLongText(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	got := normalizePhrase(long)
	if len(got) > 181 {
		t.Fatalf("normalizePhrase() len = %d, want <= 181", len(got))
	}
}

func TestSpeakForNeverRepeatsPreviousVariant(t *testing.T) {
	profile := flightmodel.NewDefaultHazardProfile()
	profile.SpeechVariants["pull_up_now"] = []string{"variant one.", "variant two."}
	m := New(3.0, profile)

	first := m.speakFor("pull_up_now", "fallback")
	for i := 0; i < 10; i++ {
		next := m.speakFor("pull_up_now", "fallback")
		if next == first {
			t.Fatalf("speakFor repeated the same variant twice in a row: %q", next)
		}
		first = next
	}
}
