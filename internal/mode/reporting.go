package mode

import (
	"math"
	"time"

	"show-controller/internal/types"
)

// Ground station display values. The target is whatever the show manager
// reports for the current show time; when there is none every value is zero.

const crosstrackLookback = time.Second

func (m *ModeDroneShow) target() (types.Location, bool) {
	if m.stage == types.StageOff || !m.manager.HasValidTrajectory() {
		return types.Location{}, false
	}
	return m.manager.TargetLocation(m.clampedElapsed())
}

func (m *ModeDroneShow) clampedElapsed() time.Duration {
	t := m.manager.ElapsedTimeSinceStart()
	if t < 0 {
		return 0
	}
	if d := m.manager.TrajectoryDuration(); t > d {
		return d
	}
	return t
}

// WaypointLocation returns the current trajectory target.
func (m *ModeDroneShow) WaypointLocation() (types.Location, bool) {
	return m.target()
}

// WaypointDistance is the horizontal distance to the target in centimetres.
func (m *ModeDroneShow) WaypointDistance() uint32 {
	tgt, ok := m.target()
	if !ok {
		return 0
	}
	cur, ok := m.manager.CurrentLocation()
	if !ok {
		return 0
	}
	cm := cur.DistanceTo(tgt) * 100
	if cm > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(cm)
}

// WaypointBearing is the bearing to the target in centidegrees.
func (m *ModeDroneShow) WaypointBearing() int32 {
	tgt, ok := m.target()
	if !ok {
		return 0
	}
	cur, ok := m.manager.CurrentLocation()
	if !ok {
		return 0
	}
	return int32(math.Round(cur.BearingTo(tgt)*100)) % 36000
}

// CrosstrackError is the distance in metres from the path between the target
// one second ago and the current target.
func (m *ModeDroneShow) CrosstrackError() float64 {
	tgt, ok := m.target()
	if !ok {
		return 0
	}
	cur, ok := m.manager.CurrentLocation()
	if !ok {
		return 0
	}
	t := m.clampedElapsed() - crosstrackLookback
	if t < 0 {
		t = 0
	}
	prev, ok := m.manager.TargetLocation(t)
	if !ok || prev.DistanceTo(tgt) < 0.01 {
		return 0
	}
	return cur.CrosstrackError(prev, tgt)
}
