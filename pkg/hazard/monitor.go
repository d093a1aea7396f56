// Package hazard implements the stateless-per-call urgent hazard monitor:
// given one snapshot and the current phase state, it returns zero or more
// HazardAlerts for immediate speech. Cooldown and repeat suppression live
// in package speech, not here — this package only decides "is this
// hazardous right now," never "have we already said this."
package hazard

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Monitor evaluates the fixed urgent-hazard rule set against each
// snapshot. It is not safe for concurrent use; the runtime supervisor
// owns a single instance and calls Evaluate from its tick loop only.
type Monitor struct {
	urgentCooldownSec float64
	profile           flightmodel.HazardProfile
	rng               *rand.Rand

	fieldElevationM    *float64
	lastVariantIdx     map[string]int
	taxiInRolloutClear bool
}

// New builds a Monitor with the given urgent cooldown (seconds, attached
// to every alert it emits) and an initial hazard profile.
func New(urgentCooldownSec float64, profile flightmodel.HazardProfile) *Monitor {
	return &Monitor{
		urgentCooldownSec: urgentCooldownSec,
		profile:           profile,
		rng:               rand.New(rand.NewSource(1)),
		lastVariantIdx:    make(map[string]int),
	}
}

// Reset clears per-flight state (taxi-in rollout latch, speech variant
// cursors) for a new flight cycle, keeping the cooldown and hazard
// profile configuration.
func (m *Monitor) Reset() {
	m.lastVariantIdx = make(map[string]int)
	m.taxiInRolloutClear = false
	m.fieldElevationM = nil
}

// SetHazardProfile swaps in a freshly bootstrapped or refreshed profile
// wholesale. It never mutates the previous value, matching the profile's
// swap-by-replacement contract.
func (m *Monitor) SetHazardProfile(profile flightmodel.HazardProfile) {
	m.profile = profile
	m.lastVariantIdx = make(map[string]int)
	m.taxiInRolloutClear = false
}

// UpdateSpeechVariants merges newly fetched phrase variants into the
// current profile's speech_variants, normalizing and capping each list at
// 6 entries, then swaps the merged profile in.
func (m *Monitor) UpdateSpeechVariants(variants map[string][]string) {
	if len(variants) == 0 {
		return
	}
	merged := make(map[string][]string, len(m.profile.SpeechVariants)+len(variants))
	for rule, lines := range m.profile.SpeechVariants {
		merged[rule] = append([]string(nil), lines...)
	}
	for rule, lines := range variants {
		cleaned := make([]string, 0, len(lines))
		for _, line := range lines {
			if p := normalizePhrase(line); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			if len(cleaned) > 6 {
				cleaned = cleaned[:6]
			}
			merged[rule] = cleaned
		}
	}
	m.profile.SpeechVariants = merged
	m.lastVariantIdx = make(map[string]int)
}

// Evaluate runs the urgent rule set and returns any alerts raised this
// tick. On the ground, only excessive_taxi_speed is considered and the
// function returns as soon as that check completes.
func (m *Monitor) Evaluate(snap flightmodel.Snapshot, phaseState flightmodel.PhaseState) []flightmodel.HazardAlert {
	var alerts []flightmodel.HazardAlert
	now := snap.Timestamp

	gsKt := deref(snap.GroundspeedMS) * 1.94384
	if !snap.OnGround {
		m.taxiInRolloutClear = false
	}
	if snap.OnGround && snap.ElevationM != nil && gsKt < 25 {
		elev := *snap.ElevationM
		m.fieldElevationM = &elev
	}

	ias := deref(snap.IndicatedAirspeedKt)
	vs := deref(snap.VerticalSpeedFpm)
	bankAbs := absf(deref(snap.RollDeg))
	agl := snap.AGLFeet(m.fieldElevationM)

	if snap.OnGround {
		if m.enabled("excessive_taxi_speed") {
			if !m.shouldMonitorTaxiSpeed(snap, phaseState, gsKt, ias) {
				return alerts
			}
			maxTaxiSpeed := m.threshold("max_taxi_speed_kt", 30.0)
			maxTaxiIAS := m.threshold("max_taxi_ias_kt", 35.0)
			if gsKt > maxTaxiSpeed || ias > maxTaxiIAS {
				alerts = append(alerts, flightmodel.HazardAlert{
					AlertID:     "excessive_taxi_speed",
					Severity:    flightmodel.AlertWarning,
					Message:     "Taxi speed exceeds configured limit.",
					SpeakText:   m.speakFor("excessive_taxi_speed", "Slow down taxi speed now and regain full directional control."),
					CooldownSec: m.urgentCooldownSec,
					TriggeredAt: now,
				})
			}
		}
		return alerts
	}

	stallWarning := snap.StallWarning != nil && *snap.StallWarning
	if m.enabled("stall_or_low_speed") &&
		(stallWarning || (ias < m.threshold("low_airspeed_kt", 50.0) &&
			(agl == nil || *agl > m.threshold("low_airspeed_min_agl_ft", 100.0)))) {
		alerts = append(alerts, flightmodel.HazardAlert{
			AlertID:     "stall_or_low_speed",
			Severity:    flightmodel.AlertCritical,
			Message:     "Low energy / stall risk detected.",
			SpeakText:   m.speakFor("stall_or_low_speed", "Airspeed critical. Lower the nose and add power now."),
			CooldownSec: m.urgentCooldownSec,
			TriggeredAt: now,
		})
	}

	if m.enabled("excessive_sink_low_alt") && agl != nil &&
		*agl < m.threshold("excessive_sink_max_agl_ft", 1000.0) &&
		vs < m.threshold("excessive_sink_fpm", -1500.0) {
		alerts = append(alerts, flightmodel.HazardAlert{
			AlertID:     "excessive_sink_low_alt",
			Severity:    flightmodel.AlertCritical,
			Message:     "Excessive sink rate at low altitude.",
			SpeakText:   m.speakFor("excessive_sink_low_alt", "Sink rate. Reduce descent and stabilize immediately."),
			CooldownSec: m.urgentCooldownSec,
			TriggeredAt: now,
		})
	}

	if m.enabled("high_bank_low_alt") && agl != nil &&
		*agl < m.threshold("high_bank_max_agl_ft", 1000.0) &&
		bankAbs > m.threshold("high_bank_deg", 45.0) {
		alerts = append(alerts, flightmodel.HazardAlert{
			AlertID:     "high_bank_low_alt",
			Severity:    flightmodel.AlertCritical,
			Message:     "High bank angle at low altitude.",
			SpeakText:   m.speakFor("high_bank_low_alt", "Bank angle. Roll wings level and stabilize the approach."),
			CooldownSec: m.urgentCooldownSec,
			TriggeredAt: now,
		})
	}

	if m.enabled("pull_up_now") && agl != nil &&
		*agl < m.threshold("pull_up_max_agl_ft", 300.0) &&
		vs < m.threshold("pull_up_fpm", -1000.0) {
		alerts = append(alerts, flightmodel.HazardAlert{
			AlertID:     "pull_up_now",
			Severity:    flightmodel.AlertCritical,
			Message:     "Impact risk: very high descent close to ground.",
			SpeakText:   m.speakFor("pull_up_now", "Pull up. Arrest descent now."),
			CooldownSec: m.urgentCooldownSec,
			TriggeredAt: now,
		})
	}

	approachOrLanding := phaseState.Phase == flightmodel.PhaseApproach || phaseState.Phase == flightmodel.PhaseLanding
	if m.enabled("unstable_approach_fast_or_sink") && approachOrLanding && agl != nil &&
		*agl < m.threshold("unstable_approach_max_agl_ft", 1000.0) &&
		(ias > m.threshold("unstable_approach_max_ias_kt", 95.0) || vs < m.threshold("unstable_approach_min_sink_fpm", -1000.0)) {
		alerts = append(alerts, flightmodel.HazardAlert{
			AlertID:     "unstable_approach_fast_or_sink",
			Severity:    flightmodel.AlertCritical,
			Message:     "Approach stability limits exceeded.",
			SpeakText:   m.speakFor("unstable_approach_fast_or_sink", "Unstable approach. Correct now or execute a go-around."),
			CooldownSec: m.urgentCooldownSec,
			TriggeredAt: now,
		})
	}

	return alerts
}

func (m *Monitor) enabled(rule string) bool {
	return m.profile.Enabled(rule)
}

func (m *Monitor) threshold(name string, fallback float64) float64 {
	return m.profile.Threshold(name, fallback)
}

func (m *Monitor) shouldMonitorTaxiSpeed(snap flightmodel.Snapshot, phaseState flightmodel.PhaseState, gsKt, ias float64) bool {
	phase := phaseState.Phase
	if phase != flightmodel.PhaseTaxiOut && phase != flightmodel.PhaseTaxiIn {
		return false
	}
	if phase == flightmodel.PhaseTaxiOut && m.isTakeoffGroundRoll(snap, gsKt, ias) {
		return false
	}
	if phase == flightmodel.PhaseTaxiIn {
		if !m.taxiInRolloutClear {
			clearGS := m.threshold("taxi_in_rollout_clear_gs_kt", 25.0)
			clearIAS := m.threshold("taxi_in_rollout_clear_ias_kt", 30.0)
			if gsKt <= clearGS && ias <= clearIAS {
				m.taxiInRolloutClear = true
			} else {
				return false
			}
		}
	}
	return true
}

func (m *Monitor) isTakeoffGroundRoll(snap flightmodel.Snapshot, gsKt, ias float64) bool {
	throttle := deref(snap.ThrottleRatio)
	thrTakeoff := m.threshold("taxi_takeoff_roll_throttle_ratio", 0.65)
	iasTakeoff := m.threshold("taxi_takeoff_roll_ias_kt", 35.0)
	gsTakeoff := m.threshold("taxi_takeoff_roll_gs_kt", 30.0)
	return throttle >= thrTakeoff && (ias >= iasTakeoff || gsKt >= gsTakeoff)
}

// speakFor picks a speech variant for alertID, never repeating the
// immediately previous index, or falls back to a normalized default.
func (m *Monitor) speakFor(alertID, fallback string) string {
	var variants []string
	for _, raw := range m.profile.Variants(alertID) {
		if p := normalizePhrase(raw); p != "" {
			variants = append(variants, p)
		}
	}
	if len(variants) == 0 {
		if p := normalizePhrase(fallback); p != "" {
			return p
		}
		return fallback
	}
	if len(variants) == 1 {
		m.lastVariantIdx[alertID] = 0
		return variants[0]
	}

	idx := m.rng.Intn(len(variants))
	if prev, ok := m.lastVariantIdx[alertID]; ok && idx == prev {
		idx = (idx + 1) % len(variants)
	}
	m.lastVariantIdx[alertID] = idx
	return variants[idx]
}

// normalizePhrase collapses whitespace, caps length at 180 characters,
// and ensures a single terminal punctuation mark.
func normalizePhrase(text string) string {
	value := strings.TrimSpace(text)
	if value == "" {
		return ""
	}
	value = whitespaceRe.ReplaceAllString(value, " ")
	if len(value) > 180 {
		value = truncateText(value, 180)
	}
	if value != "" {
		last := value[len(value)-1]
		if last != '.' && last != '!' && last != '?' {
			value += "."
		}
	}
	return value
}

// truncateText shortens text to at most maxChars, preferring to break on
// a word boundary in the tail 40% of the allowed length.
func truncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	headLen := maxChars + 1
	if headLen > len(text) {
		headLen = len(text)
	}
	head := text[:headLen]
	boundary := strings.LastIndex(head, " ")
	if boundary >= int(float64(maxChars)*0.6) {
		head = head[:boundary]
	} else {
		head = text[:maxChars]
	}
	return strings.TrimRight(head, " ,;:-")
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
