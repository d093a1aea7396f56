package telemetry

// fieldKey names one of the fixed simulator data fields this client
// subscribes to. Keeping it as a distinct type (rather than a bare
// string) stops callers from confusing it with a raw dataref path.
type fieldKey string

const (
	keyLatitude       fieldKey = "latitude_deg"
	keyLongitude      fieldKey = "longitude_deg"
	keyElevation      fieldKey = "elevation_m"
	keyGroundspeed    fieldKey = "groundspeed_m_s"
	keyIAS            fieldKey = "indicated_airspeed_kt"
	keyHeadingTrue    fieldKey = "heading_true_deg"
	keyHeadingMag     fieldKey = "magnetic_heading_deg"
	keyVerticalSpeed  fieldKey = "vertical_speed_fpm"
	keyRoll           fieldKey = "roll_deg"
	keyPitch          fieldKey = "pitch_deg"
	keyThrottle       fieldKey = "throttle_ratio"
	keyEngineRunning  fieldKey = "engine_running"
	keyEngineRpm      fieldKey = "engine_rpm"
	keyFlap           fieldKey = "flap_ratio"
	keyParkingBrake   fieldKey = "parking_brake_ratio"
	keyOnGround       fieldKey = "on_ground"
	keyStallWarning   fieldKey = "stall_warning"
	keyCom1           fieldKey = "com1_hz"
)

// datarefByKey is the fixed field set in §6 of the specification: the
// exact simulator dataref path subscribed to for each logical key.
var datarefByKey = map[fieldKey]string{
	keyLatitude:      "sim/flightmodel/position/latitude",
	keyLongitude:     "sim/flightmodel/position/longitude",
	keyElevation:     "sim/flightmodel/position/elevation",
	keyGroundspeed:   "sim/flightmodel/position/groundspeed",
	keyIAS:           "sim/flightmodel/position/indicated_airspeed",
	keyHeadingTrue:   "sim/flightmodel/position/psi",
	keyHeadingMag:    "sim/flightmodel/position/magpsi",
	keyVerticalSpeed: "sim/flightmodel/position/vh_ind_fpm",
	keyRoll:          "sim/flightmodel/position/phi",
	keyPitch:         "sim/flightmodel/position/theta",
	keyThrottle:      "sim/flightmodel/engine/ENGN_thro[0]",
	keyEngineRunning: "sim/flightmodel/engine/ENGN_running[0]",
	keyEngineRpm:     "sim/flightmodel/engine/ENGN_N1_[0]",
	keyFlap:          "sim/flightmodel/controls/flaprqst",
	keyParkingBrake:  "sim/flightmodel/controls/parkbrake",
	keyOnGround:      "sim/flightmodel/failures/onground_any",
	keyStallWarning:  "sim/cockpit2/annunciators/stall_warning",
	keyCom1:          "sim/cockpit2/radios/actuators/com1_frequency_hz_833",
}

// orderedFieldKeys fixes subscription (and index assignment) order so a
// rebuilt client assigns the same index to the same field every run.
var orderedFieldKeys = []fieldKey{
	keyLatitude, keyLongitude, keyElevation,
	keyGroundspeed, keyIAS,
	keyHeadingTrue, keyHeadingMag,
	keyVerticalSpeed, keyRoll, keyPitch,
	keyThrottle, keyEngineRunning, keyEngineRpm,
	keyFlap, keyParkingBrake,
	keyOnGround, keyStallWarning,
	keyCom1,
}

// indexByKey assigns each field a stable subscription index, and
// keyByIndex inverts it for decoding incoming records.
var (
	indexByKey = func() map[fieldKey]int32 {
		m := make(map[fieldKey]int32, len(orderedFieldKeys))
		for i, k := range orderedFieldKeys {
			m[k] = int32(i)
		}
		return m
	}()
	keyByIndex = func() map[int32]fieldKey {
		m := make(map[int32]fieldKey, len(orderedFieldKeys))
		for k, i := range indexByKey {
			m[i] = k
		}
		return m
	}()
)

// boolFromFloat collapses a float32 dataref value to a boolean the way
// the wire protocol defines: true iff the value is >= 0.5.
func boolFromFloat(v float32) bool {
	return v >= 0.5
}
