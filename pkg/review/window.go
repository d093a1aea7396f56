// Package review builds the periodic non-urgent review window that feeds
// the expert team's coaching pass: a statistical summary of a trailing
// slice of snapshots plus a handful of heuristic event hints.
package review

import (
	"errors"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// ErrEmptyWindow is returned when Build is called with no snapshots.
var ErrEmptyWindow = errors.New("review: cannot build a window from zero snapshots")

// Builder accumulates the field elevation baseline across calls to Build,
// the same way the hazard monitor and phase tracker do, so AGL values
// stay consistent even across ticks where the aircraft isn't on the
// ground.
type Builder struct {
	fieldElevationM *float64
}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset clears the learned field-elevation baseline, called when a new
// flight cycle begins so the previous flight's field elevation never
// leaks into the next one's AGL calculations.
func (b *Builder) Reset() {
	b.fieldElevationM = nil
}

// Build summarizes snapshots (must be non-empty, chronologically ordered)
// into a ReviewWindow tagged with phase.
func (b *Builder) Build(snapshots []flightmodel.Snapshot, phase flightmodel.Phase) (flightmodel.ReviewWindow, error) {
	if len(snapshots) == 0 {
		return flightmodel.ReviewWindow{}, ErrEmptyWindow
	}

	for _, s := range snapshots {
		gsKt := 0.0
		if s.GroundspeedMS != nil {
			gsKt = *s.GroundspeedMS * 1.94384
		}
		if s.OnGround && s.ElevationM != nil && gsKt < 25 {
			elev := *s.ElevationM
			b.fieldElevationM = &elev
		}
	}

	var iasValues, vsValues, rollValues, aglValues []float64
	for _, s := range snapshots {
		if s.IndicatedAirspeedKt != nil {
			iasValues = append(iasValues, *s.IndicatedAirspeedKt)
		}
		if s.VerticalSpeedFpm != nil {
			vsValues = append(vsValues, *s.VerticalSpeedFpm)
		}
		if s.RollDeg != nil {
			rollValues = append(rollValues, absf(*s.RollDeg))
		}
		if agl := s.AGLFeet(b.fieldElevationM); agl != nil {
			aglValues = append(aglValues, *agl)
		}
	}

	metrics := flightmodel.ReviewMetrics{
		IASMinKt:      minOr(iasValues, 0),
		IASMaxKt:      maxOr(iasValues, 0),
		IASMeanKt:     meanOr(iasValues, 0),
		VSMeanFpm:     meanOr(vsValues, 0),
		VSMinFpm:      minOr(vsValues, 0),
		VSMaxFpm:      maxOr(vsValues, 0),
		RollAbsMaxDeg: maxOr(rollValues, 0),
		AGLMinFt:      minOr(aglValues, 0),
		AGLMaxFt:      maxOr(aglValues, 0),
	}

	var hints []string
	approachOrLanding := phase == flightmodel.PhaseApproach || phase == flightmodel.PhaseLanding
	takeoffOrClimb := phase == flightmodel.PhaseTakeoff || phase == flightmodel.PhaseInitialClimb

	if approachOrLanding && metrics.IASMaxKt > 95 {
		hints = append(hints, "Approach speed appears high for primary GA profile.")
	}
	if takeoffOrClimb && metrics.IASMinKt < 55 {
		hints = append(hints, "Low airspeed observed during takeoff/climb segment.")
	}
	if metrics.RollAbsMaxDeg > 35 {
		hints = append(hints, "Steep bank observed; coach smoother bank discipline.")
	}
	if metrics.AGLMinFt < 1000 && metrics.VSMinFpm < -1000 {
		hints = append(hints, "High sink near ground seen in this window.")
	}

	return flightmodel.ReviewWindow{
		StartEpoch:  snapshots[0].Timestamp,
		EndEpoch:    snapshots[len(snapshots)-1].Timestamp,
		Phase:       phase,
		SampleCount: len(snapshots),
		Metrics:     metrics,
		EventHints:  hints,
	}, nil
}

func minOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func meanOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
