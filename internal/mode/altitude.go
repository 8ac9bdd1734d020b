package mode

import "show-controller/internal/types"

// altitudeFloor keeps the commanded position from dropping below the takeoff
// altitude right after the handoff from takeoff to the trajectory. It is
// released for good once the trajectory itself climbs to takeoff altitude.
type altitudeFloor struct {
	locked bool
}

func (a *altitudeFloor) lock() {
	a.locked = true
}

func (a *altitudeFloor) reset() {
	a.locked = false
}

// apply clamps raw while locked. The second return value is true on the call
// that released the lock.
func (a *altitudeFloor) apply(raw types.Vector3, takeoffAltitude, tolerance float64) (types.Vector3, bool) {
	if !a.locked {
		return raw, false
	}
	if raw.Up >= takeoffAltitude {
		a.locked = false
		return raw, true
	}
	if floor := takeoffAltitude - tolerance; raw.Up < floor {
		raw.Up = floor
	}
	return raw, false
}
