package mode

import (
	"show-controller/internal/clock"
	"show-controller/internal/types"
)

func (m *ModeDroneShow) armingCooldownActive() bool {
	return m.armingBlocked && !clock.Reached(m.now, m.preventArmingUntil)
}

// inMotorStartWindow reports whether the scheduled start is at most the
// motor start lead away (or already past).
func (m *ModeDroneShow) inMotorStartWindow() bool {
	if m.manager.StartTime().IsZero() {
		return false
	}
	return m.manager.ElapsedTimeSinceStart() >= -m.p.MotorStartLead
}

func (m *ModeDroneShow) preparedToTakeOff() bool {
	return m.preflightCalibrationDone &&
		m.manager.IsAuthorized() &&
		m.manager.HasValidTrajectory() &&
		m.inMotorStartWindow()
}

func (m *ModeDroneShow) armingPermitted() bool {
	return m.stage == types.StageWaitForStartTime &&
		m.preparedToTakeOff() &&
		!m.armingCooldownActive()
}

// tryToStartMotorsIfPreparedToTakeOff arms the vehicle for the show once the
// motor start window has opened. It returns whether an attempt was made. A
// refused arm request blocks further attempts for the arming cooldown.
func (m *ModeDroneShow) tryToStartMotorsIfPreparedToTakeOff() bool {
	if m.motorsStarted || !m.homePositionSet {
		return false
	}
	if !m.vehicle.Landed() {
		return false
	}
	if m.armingBlocked {
		if m.armingCooldownActive() {
			return false
		}
		m.armingBlocked = false
	}
	if !m.armingPermitted() {
		return false
	}

	if !m.vehicle.Arm(types.ArmingMethodShow) {
		m.armingBlocked = true
		m.preventArmingUntil = clock.Add(m.now, m.p.ArmingCooldown)
		m.logger.Warnf("Arming failed, next attempt in %s", m.p.ArmingCooldown)
		return true
	}

	m.motorsStarted = true
	m.logger.Infof("Motors started, %s to takeoff", -m.manager.ElapsedTimeSinceStart())
	return true
}

// AllowsArming is consulted by the arming subsystem. Once an authorized show
// is loaded, only the show itself may arm, and only inside its motor start
// window.
func (m *ModeDroneShow) AllowsArming(method types.ArmingMethod) bool {
	if m.stage == types.StageOff {
		return true
	}
	if !m.manager.IsAuthorized() || !m.manager.HasValidTrajectory() {
		return true
	}
	return method == types.ArmingMethodShow && m.armingPermitted()
}
