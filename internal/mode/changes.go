package mode

import (
	"show-controller/internal/fsm"
	"show-controller/internal/types"
)

// checkChangesInParameters runs at the top of every tick and reacts to
// changes made outside the mode since the previous tick.
func (m *ModeDroneShow) checkChangesInParameters() {
	if p, v := m.params.Load(); v != m.paramsVersion {
		m.p, m.paramsVersion = p, v
		m.logger.Infof("Show parameters updated (version %d): lead=%s cooldown=%s takeoff=%.1fm timeout=%s",
			v, p.MotorStartLead, p.ArmingCooldown, p.TakeoffAltitude, p.TakeoffTimeout)
	}

	if authorized := m.manager.IsAuthorized(); authorized != m.lastAuthorized {
		m.lastAuthorized = authorized
		m.notifyAuthorizationChanged(authorized)
	}

	if start := m.manager.StartTime(); !start.Equal(m.lastStartTime) {
		m.lastStartTime = start
		m.notifyStartTimeChanged()
	}

	if rev := m.manager.TrajectoryRevision(); rev != m.lastTrajectoryRevision {
		m.lastTrajectoryRevision = rev
		m.notifyTrajectoryChanged()
	}
}

func (m *ModeDroneShow) notifyAuthorizationChanged(authorized bool) {
	if authorized {
		m.logger.Infof("Show authorized")
		return
	}

	m.logger.Infof("Show authorization revoked")
	if m.stage == types.StageWaitForStartTime {
		m.restartMotorStartSequence()
	}
}

func (m *ModeDroneShow) notifyStartTimeChanged() {
	start := m.lastStartTime
	if start.IsZero() {
		m.logger.Infof("Start time cleared")
	} else {
		m.logger.Infof("Start time set to %s", start.UTC().Format("15:04:05.000"))
	}

	switch {
	case m.stage == types.StageWaitForStartTime:
		m.restartMotorStartSequence()
	case m.showInFlight():
		m.abortShowInFlight(fsm.ReasonScheduleChanged, "Show schedule changed in flight, returning")
	}
}

func (m *ModeDroneShow) notifyTrajectoryChanged() {
	m.logger.Infof("Trajectory replaced")

	switch {
	case m.stage == types.StageWaitForStartTime:
		m.restartMotorStartSequence()
	case m.showInFlight():
		m.abortShowInFlight(fsm.ReasonTrajectoryChanged, "Trajectory replaced in flight, returning")
	}
}

// showInFlight reports whether the vehicle is flying the scheduled show, in
// which case the trajectory timeline must not move under it.
func (m *ModeDroneShow) showInFlight() bool {
	switch m.stage {
	case types.StagePerforming:
		return true
	case types.StageTakeoff:
		return m.nextStageAfterTakeoff == types.StagePerforming
	}
	return false
}

func (m *ModeDroneShow) abortShowInFlight(reason, text string) {
	m.nextStageAfterTakeoff = ""
	m.notifier.SendText(types.SeverityWarning, text)
	m.rtlStart(reason)
}

// restartMotorStartSequence undoes the motor start and the final home anchor
// so both happen again for the new schedule. Only used on the ground.
func (m *ModeDroneShow) restartMotorStartSequence() {
	if !m.vehicle.Landed() {
		return
	}
	if m.motorsStarted {
		m.motorsStarted = false
		if m.vehicle.Armed() && !m.vehicle.Disarm() {
			m.logger.Warnf("Disarm request failed")
		}
		m.notifier.SendText(types.SeverityNotice, "Show schedule changed, motors stopped")
	}
	m.homePositionSet = false
	m.armingBlocked = false
	m.preventArmingUntil = m.now
}
