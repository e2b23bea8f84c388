package calibration

// Status is the inspection readiness of an item, derived from the record's
// timestamps and the current time.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	StatusCoolingDown   Status = "cooling_down"
)

// CooldownEnd is the unix time at which r can be inspected again, or zero
// if it has never been recalibrated.
func CooldownEnd(r Record, interactPeriod int64) int64 {
	if r.LastRecalibration == 0 {
		return 0
	}
	return r.LastRecalibration + max64(interactPeriod, 1)*hourSeconds
}

// StatusAt computes readiness: missing records are uninitialized, records
// within interactPeriod hours of their last recalibration are cooling down.
func StatusAt(r Record, interactPeriod int64, now int64) Status {
	if !r.Exists() {
		return StatusUninitialized
	}
	if end := CooldownEnd(r, interactPeriod); end != 0 && now < end {
		return StatusCoolingDown
	}
	return StatusReady
}
