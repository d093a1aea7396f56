package review

import (
	"testing"
	"time"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

func TestBuildRejectsEmptyWindow(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Build(nil, flightmodel.PhaseCruise); err != ErrEmptyWindow {
		t.Fatalf("err = %v, want ErrEmptyWindow", err)
	}
}

func TestBuildSummarizesMetrics(t *testing.T) {
	b := NewBuilder()
	base := time.Now()
	snaps := []flightmodel.Snapshot{
		{Timestamp: base, IndicatedAirspeedKt: flightmodel.F64(60), VerticalSpeedFpm: flightmodel.F64(-100), RollDeg: flightmodel.F64(-10)},
		{Timestamp: base.Add(time.Second), IndicatedAirspeedKt: flightmodel.F64(90), VerticalSpeedFpm: flightmodel.F64(100), RollDeg: flightmodel.F64(20)},
	}
	win, err := b.Build(snaps, flightmodel.PhaseCruise)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if win.Metrics.IASMinKt != 60 || win.Metrics.IASMaxKt != 90 {
		t.Errorf("IAS min/max = %v/%v, want 60/90", win.Metrics.IASMinKt, win.Metrics.IASMaxKt)
	}
	if win.Metrics.IASMeanKt != 75 {
		t.Errorf("IASMean = %v, want 75", win.Metrics.IASMeanKt)
	}
	if win.Metrics.VSMeanFpm != 0 {
		t.Errorf("VSMean = %v, want 0", win.Metrics.VSMeanFpm)
	}
	if win.Metrics.RollAbsMaxDeg != 20 {
		t.Errorf("RollAbsMax = %v, want 20", win.Metrics.RollAbsMaxDeg)
	}
	if win.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", win.SampleCount)
	}
}

func TestBuildHighSinkNearGroundHint(t *testing.T) {
	b := NewBuilder()
	base := time.Now()
	snaps := []flightmodel.Snapshot{
		{Timestamp: base, OnGround: true, ElevationM: flightmodel.F64(100), GroundspeedMS: flightmodel.F64(1)},
		{Timestamp: base.Add(time.Second), ElevationM: flightmodel.F64(200), VerticalSpeedFpm: flightmodel.F64(-1500)},
	}
	win, err := b.Build(snaps, flightmodel.PhaseDescent)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	found := false
	for _, h := range win.EventHints {
		if h == "High sink near ground seen in this window." {
			found = true
		}
	}
	if !found {
		t.Errorf("hints = %v, want high-sink hint", win.EventHints)
	}
}

func TestBuildApproachSpeedHighHint(t *testing.T) {
	b := NewBuilder()
	base := time.Now()
	snaps := []flightmodel.Snapshot{
		{Timestamp: base, IndicatedAirspeedKt: flightmodel.F64(110)},
	}
	win, err := b.Build(snaps, flightmodel.PhaseApproach)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(win.EventHints) != 1 || win.EventHints[0] != "Approach speed appears high for primary GA profile." {
		t.Errorf("hints = %v, want approach-speed-high hint", win.EventHints)
	}
}

func TestResetClearsFieldElevationBaseline(t *testing.T) {
	b := NewBuilder()
	base := time.Now()
	onGround := []flightmodel.Snapshot{
		{Timestamp: base, OnGround: true, ElevationM: flightmodel.F64(500), GroundspeedMS: flightmodel.F64(1)},
	}
	if _, err := b.Build(onGround, flightmodel.PhaseTaxiOut); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	b.Reset()

	airborneAtNewFieldElevation := []flightmodel.Snapshot{
		{Timestamp: base.Add(time.Hour), ElevationM: flightmodel.F64(1500)},
	}
	win, err := b.Build(airborneAtNewFieldElevation, flightmodel.PhaseCruise)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if win.Metrics.AGLMinFt != 0 {
		t.Errorf("AGLMinFt = %v, want 0 (no field elevation baseline after Reset)", win.Metrics.AGLMinFt)
	}
}
