package mode

import (
	"show-controller/internal/fsm"
	"show-controller/internal/types"
)

// --- Init ---

func (m *ModeDroneShow) initializationStart() {
	m.setStage(types.StageInit, fsm.ReasonModeEntered)
}

func (m *ModeDroneShow) initializationRun() {
	if !m.vehicle.Landed() {
		// Entered in the air; there is nothing to calibrate and the show
		// cannot be started, but cancel/RTL must still work.
		m.waitForStartTimeStart(fsm.ReasonModeEntered)
		return
	}

	m.vehicle.IdleRun()

	if !m.preflightCalibrationDone {
		if !m.vehicle.PreflightCalibrate() {
			return
		}
		m.preflightCalibrationDone = true
		m.logger.Infof("Preflight calibration done")
	}

	if !m.vehicle.PrearmChecks() {
		return
	}

	m.waitForStartTimeStart(fsm.ReasonPreflightComplete)
}

// --- WaitForStartTime ---

func (m *ModeDroneShow) waitForStartTimeStart(reason string) {
	if !m.setStage(types.StageWaitForStartTime, reason) {
		return
	}

	m.motorsStarted = false
	m.homePositionSet = false
	m.lastHomePositionResetAttemptAt = m.now

	if !m.vehicle.Landed() {
		m.vehicle.LoiterStart()
	}
}

func (m *ModeDroneShow) waitForStartTimeRun() {
	if m.cancelRequested() {
		m.pendingTakeoff = false
		if m.vehicle.Landed() {
			m.landedStart(fsm.ReasonCancelled)
		} else {
			m.rtlStart(fsm.ReasonCancelled)
		}
		return
	}

	if m.pendingTakeoff {
		m.pendingTakeoff = false
		m.takeoffStart(types.StageLoiter, m.pendingTakeoffAltitude, fsm.ReasonTestTakeoff)
		return
	}

	if m.vehicle.Landed() {
		m.vehicle.IdleRun()
	} else {
		m.vehicle.LoiterRun()
	}

	m.tryToUpdateHomePosition()
	m.tryToStartMotorsIfPreparedToTakeOff()

	if !m.startTimeReached() {
		return
	}
	if !m.manager.IsAuthorized() || !m.manager.HasValidTrajectory() {
		// nothing scheduled to fly
		return
	}

	if m.motorsStarted && m.vehicle.Armed() {
		m.takeoffStart(types.StagePerforming, m.p.TakeoffAltitude, fsm.ReasonStartTimeReached)
	} else {
		m.errorStart(fsm.ReasonMotorStartMissed)
	}
}

func (m *ModeDroneShow) startTimeReached() bool {
	if m.manager.StartTime().IsZero() {
		return false
	}
	return m.manager.ElapsedTimeSinceStart() >= 0
}

// --- Takeoff ---

func (m *ModeDroneShow) takeoffStart(next types.Stage, altitude float64, reason string) {
	m.nextStageAfterTakeoff = next
	if !m.setStage(types.StageTakeoff, reason) {
		m.nextStageAfterTakeoff = ""
		return
	}

	if !m.vehicle.TakeoffStart(altitude) {
		m.logger.Errorf("Vehicle refused takeoff to %.1f m", altitude)
		m.nextStageAfterTakeoff = ""
		m.errorStart(fsm.ReasonTakeoffRefused)
	}
}

func (m *ModeDroneShow) takeoffRun() {
	if m.cancelRequested() {
		m.nextStageAfterTakeoff = ""
		m.rtlStart(fsm.ReasonCancelled)
		return
	}
	if m.nextStageAfterTakeoff == types.StagePerforming && !m.manager.IsAuthorized() {
		m.nextStageAfterTakeoff = ""
		m.rtlStart(fsm.ReasonAuthRevoked)
		return
	}

	m.vehicle.TakeoffRun()

	if m.takeoffCompleted() {
		next := m.nextStageAfterTakeoff
		m.nextStageAfterTakeoff = ""
		switch next {
		case types.StagePerforming:
			m.performingStart(fsm.ReasonTakeoffComplete)
		case types.StageLoiter:
			m.loiterStart(fsm.ReasonTakeoffComplete)
		default:
			m.logger.Errorf("Takeoff completed without a next stage")
			m.errorStart(fsm.ReasonTakeoffComplete)
		}
	} else if m.takeoffTimedOut() {
		m.nextStageAfterTakeoff = ""
		m.errorStart(fsm.ReasonTakeoffTimeout)
	}
}

func (m *ModeDroneShow) takeoffCompleted() bool {
	return m.vehicle.TakeoffComplete()
}

func (m *ModeDroneShow) takeoffTimedOut() bool {
	return m.elapsedSinceLastStageChange() > m.p.TakeoffTimeout
}

// --- Performing ---

func (m *ModeDroneShow) performingStart(reason string) {
	if !m.setStage(types.StagePerforming, reason) {
		return
	}

	m.altitude.lock()

	if !m.vehicle.GuidedStart() {
		m.logger.Errorf("Vehicle refused position control, returning to launch")
		m.rtlStart(fsm.ReasonGuidedRefused)
		return
	}
	m.sendGuidedModeCommandDuringPerformance()
}

func (m *ModeDroneShow) performingRun() {
	switch {
	case m.cancelRequested():
		m.rtlStart(fsm.ReasonCancelled)
		return
	case !m.manager.IsAuthorized():
		m.rtlStart(fsm.ReasonAuthRevoked)
		return
	case !m.manager.HasValidTrajectory():
		m.rtlStart(fsm.ReasonTrajectoryLost)
		return
	}

	if m.performingCompleted() {
		m.landingStart(fsm.ReasonShowComplete)
		return
	}

	m.sendGuidedModeCommandDuringPerformance()
	m.vehicle.GuidedRun()
}

func (m *ModeDroneShow) performingCompleted() bool {
	return m.manager.ElapsedTimeSinceStart() >= m.manager.TrajectoryDuration()
}

// sendGuidedModeCommandDuringPerformance commands the current trajectory
// point, held above the altitude floor while it is active.
func (m *ModeDroneShow) sendGuidedModeCommandDuringPerformance() bool {
	raw, ok := m.manager.RelativeTargetPosition(m.manager.ElapsedTimeSinceStart())
	if !ok {
		return false
	}

	target, released := m.altitude.apply(raw, m.p.TakeoffAltitude, m.p.AltitudeFloorTolerance)
	if released {
		m.logger.Infof("Trajectory rose above takeoff altitude (%.2f m), altitude floor released", raw.Up)
	}
	m.vehicle.GuidedSetPosition(target)
	return true
}

// --- Landing ---

func (m *ModeDroneShow) landingStart(reason string) {
	if !m.setStage(types.StageLanding, reason) {
		return
	}
	m.altitude.reset()
	if !m.vehicle.LandStart() {
		m.logger.Warnf("Vehicle refused to start landing, retrying")
	}
}

func (m *ModeDroneShow) landingRun() {
	m.vehicle.LandRun()

	if m.landingCompleted() {
		m.landedStart(fsm.ReasonTouchdown)
	}
}

func (m *ModeDroneShow) landingCompleted() bool {
	return m.vehicle.Landed()
}

// --- RTL ---

func (m *ModeDroneShow) rtlStart(reason string) {
	if !m.setStage(types.StageRTL, reason) {
		return
	}
	m.altitude.reset()
	if !m.vehicle.RTLStart() {
		m.logger.Warnf("Vehicle refused RTL, landing in place")
		m.landingStart(fsm.ReasonRTLRefused)
	}
}

func (m *ModeDroneShow) rtlRun() {
	m.vehicle.RTLRun()

	if m.rtlCompleted() {
		m.landedStart(fsm.ReasonReturned)
	}
}

func (m *ModeDroneShow) rtlCompleted() bool {
	return m.vehicle.RTLComplete()
}

// --- Loiter ---

func (m *ModeDroneShow) loiterStart(reason string) {
	if !m.setStage(types.StageLoiter, reason) {
		return
	}
	m.vehicle.LoiterStart()
}

func (m *ModeDroneShow) loiterRun() {
	if m.cancelRequested() {
		if m.vehicle.Landed() {
			m.landedStart(fsm.ReasonCancelled)
		} else {
			m.landingStart(fsm.ReasonCancelled)
		}
		return
	}
	if !m.vehicle.Armed() && m.vehicle.Landed() {
		m.landedStart(fsm.ReasonDisarmed)
		return
	}

	m.vehicle.LoiterRun()
}

// --- Landed ---

func (m *ModeDroneShow) landedStart(reason string) {
	if !m.setStage(types.StageLanded, reason) {
		return
	}
	m.disarmIfLanded()
}

func (m *ModeDroneShow) landedRun() {
	m.disarmIfLanded()
	m.vehicle.IdleRun()
}

// --- Error ---

func (m *ModeDroneShow) errorStart(reason string) {
	if !m.setStage(types.StageError, reason) {
		return
	}
	m.notifier.SendText(types.SeverityCritical, "Show aborted: "+reason)

	if m.vehicle.Landed() {
		m.disarmIfLanded()
	} else {
		m.vehicle.LoiterStart()
	}
}

func (m *ModeDroneShow) errorRun() {
	if m.vehicle.Landed() {
		m.disarmIfLanded()
		m.vehicle.IdleRun()
	} else {
		m.vehicle.LoiterRun()
	}
}

func (m *ModeDroneShow) disarmIfLanded() {
	if !m.vehicle.Armed() {
		return
	}
	if !m.vehicle.Landed() {
		m.logger.Warnf("Not disarming, vehicle is still airborne")
		return
	}
	if !m.vehicle.Disarm() {
		m.logger.Warnf("Disarm request failed")
	}
}
