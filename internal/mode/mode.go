// Package mode implements the drone show flight mode: a stage machine that
// is ticked once per control cycle and sequences preflight, the scheduled
// takeoff, trajectory playback, landing and the abort paths.
package mode

import (
	"fmt"
	"time"

	"show-controller/internal/clock"
	"show-controller/internal/config"
	"show-controller/internal/fsm"
	"show-controller/internal/logger"
	"show-controller/internal/types"
)

type ModeDroneShow struct {
	manager  ShowManager
	vehicle  Vehicle
	notifier Notifier
	params   ParamSource
	clock    clock.Clock
	def      *fsm.Definition
	logger   *logger.Logger

	p             config.Params
	paramsVersion uint64

	// sampled once at the start of every tick
	now uint32

	stage             types.Stage
	lastStageChangeAt uint32

	// Where to go once the takeoff has completed. Performing for a live
	// show, Loiter for a test takeoff requested by ground control.
	nextStageAfterTakeoff types.Stage

	// Whether the motors were started for the show. Set when the arming
	// request was accepted; it does not mean the motors are spinning.
	motorsStarted bool

	// Whether home was anchored to the takeoff position.
	homePositionSet                bool
	lastHomePositionResetAttemptAt uint32

	preflightCalibrationDone bool

	// Arming attempts are blocked until preventArmingUntil while
	// armingBlocked is set.
	armingBlocked      bool
	preventArmingUntil uint32

	altitude altitudeFloor

	pendingTakeoff         bool
	pendingTakeoffAltitude float64

	lastAuthorized         bool
	lastStartTime          time.Time
	lastTrajectoryRevision uint64
}

func New(manager ShowManager, vehicle Vehicle, notifier Notifier, params ParamSource, clk clock.Clock, l *logger.Logger) *ModeDroneShow {
	def := fsm.NewShowDefinition()
	if err := def.Validate(); err != nil {
		panic(fmt.Sprintf("invalid show stage table: %v", err))
	}
	p, v := params.Load()
	return &ModeDroneShow{
		manager:       manager,
		vehicle:       vehicle,
		notifier:      notifier,
		params:        params,
		clock:         clk,
		def:           def,
		logger:        l.WithTag("mode"),
		p:             p,
		paramsVersion: v,
		stage:         def.InitialStage(),
	}
}

// Init enters the mode. All latches are reset here rather than in New so the
// mode can be re-entered after Exit.
func (m *ModeDroneShow) Init(ignoreChecks bool) bool {
	m.now = m.clock.Millis()

	if !ignoreChecks {
		if _, ok := m.manager.CurrentLocation(); !ok {
			m.logger.Warnf("Refusing to enter show mode: no position estimate")
			m.notifier.SendText(types.SeverityWarning, "Show mode requires a position fix")
			return false
		}
	}

	if m.stage != types.StageOff {
		m.setStage(types.StageOff, fsm.ReasonModeExited)
	}

	m.p, m.paramsVersion = m.params.Load()

	m.nextStageAfterTakeoff = ""
	m.motorsStarted = false
	m.homePositionSet = false
	m.lastHomePositionResetAttemptAt = m.now
	m.preflightCalibrationDone = false
	m.armingBlocked = false
	m.preventArmingUntil = m.now
	m.altitude.reset()
	m.pendingTakeoff = false
	m.pendingTakeoffAltitude = 0
	m.lastAuthorized = m.manager.IsAuthorized()
	m.lastStartTime = m.manager.StartTime()
	m.lastTrajectoryRevision = m.manager.TrajectoryRevision()

	m.initializationStart()
	return true
}

// Run is called once per control cycle.
func (m *ModeDroneShow) Run() {
	m.now = m.clock.Millis()

	if m.stage == types.StageOff {
		return
	}

	m.checkChangesInParameters()

	switch m.stage {
	case types.StageInit:
		m.initializationRun()
	case types.StageWaitForStartTime:
		m.waitForStartTimeRun()
	case types.StageTakeoff:
		m.takeoffRun()
	case types.StagePerforming:
		m.performingRun()
	case types.StageLanding:
		m.landingRun()
	case types.StageRTL:
		m.rtlRun()
	case types.StageLoiter:
		m.loiterRun()
	case types.StageLanded:
		m.landedRun()
	case types.StageError:
		m.errorRun()
	}
}

func (m *ModeDroneShow) Exit() {
	m.now = m.clock.Millis()
	m.pendingTakeoff = false
	m.altitude.reset()
	m.setStage(types.StageOff, fsm.ReasonModeExited)
}

// setStage is the only place where the stage changes.
func (m *ModeDroneShow) setStage(value types.Stage, reason string) bool {
	if value == m.stage {
		return false
	}
	if !m.def.Allows(m.stage, value) {
		m.logger.Errorf("Illegal stage transition %s -> %s (%s), allowed: %v",
			m.stage, value, reason, m.def.Successors(m.stage))
		return false
	}

	from := m.stage
	m.stage = value
	m.lastStageChangeAt = m.now

	m.logger.Infof("Stage transition: %s -> %s (%s)", from, value, reason)
	m.notifier.StageChanged(from, value, reason)
	return true
}

func (m *ModeDroneShow) cancelRequested() bool {
	return m.manager.CancelRequested()
}

func (m *ModeDroneShow) elapsedSinceLastStageChange() time.Duration {
	return time.Duration(clock.Since(m.now, m.lastStageChangeAt)) * time.Millisecond
}

func (m *ModeDroneShow) elapsedSinceLastHomePositionResetAttempt() time.Duration {
	return time.Duration(clock.Since(m.now, m.lastHomePositionResetAttemptAt)) * time.Millisecond
}

// Stage returns the current execution stage.
func (m *ModeDroneShow) Stage() types.Stage {
	return m.stage
}

// Finished reports whether the mode has reached a stage it only leaves by
// exiting.
func (m *ModeDroneShow) Finished() bool {
	return m.def.IsTerminal(m.stage)
}

// Status is a snapshot of the mode for telemetry.
type Status struct {
	Stage                    types.Stage
	StageDuration            time.Duration
	MotorsStarted            bool
	HomePositionSet          bool
	PreflightCalibrationDone bool
	AltitudeLocked           bool
	ArmingBlockedFor         time.Duration
}

func (m *ModeDroneShow) Status() Status {
	s := Status{
		Stage:                    m.stage,
		StageDuration:            m.elapsedSinceLastStageChange(),
		MotorsStarted:            m.motorsStarted,
		HomePositionSet:          m.homePositionSet,
		PreflightCalibrationDone: m.preflightCalibrationDone,
		AltitudeLocked:           m.altitude.locked,
	}
	if m.armingCooldownActive() {
		s.ArmingBlockedFor = time.Duration(m.preventArmingUntil-m.now) * time.Millisecond
	}
	return s
}

// Capability flags consulted by the vehicle framework.

func (m *ModeDroneShow) Name() string             { return "DRONE_SHOW" }
func (m *ModeDroneShow) Name4() string            { return "SHOW" }
func (m *ModeDroneShow) RequiresGPS() bool        { return true }
func (m *ModeDroneShow) HasManualThrottle() bool  { return false }
func (m *ModeDroneShow) IsAutopilot() bool        { return true }
func (m *ModeDroneShow) HasUserTakeoff(bool) bool { return true }
func (m *ModeDroneShow) IsLanding() bool          { return m.stage == types.StageLanding }
func (m *ModeDroneShow) IsTakingOff() bool        { return m.stage == types.StageTakeoff }

// InGuidedMode is always false: scripting and GCS position commands must not
// interfere with a running show.
func (m *ModeDroneShow) InGuidedMode() bool { return false }

// UsePilotYaw lets the pilot yaw only while hovering after a test takeoff.
func (m *ModeDroneShow) UsePilotYaw() bool {
	return m.stage == types.StageLoiter
}

// UserTakeoff handles a takeoff command from ground control. It is only
// accepted while waiting for the start time with the vehicle armed on the
// ground, and results in a test takeoff followed by a hover.
func (m *ModeDroneShow) UserTakeoff(altitude float64) bool {
	if m.stage != types.StageWaitForStartTime {
		return false
	}
	if m.motorsStarted || !m.vehicle.Armed() || !m.vehicle.Landed() {
		return false
	}
	if altitude <= 0 {
		altitude = m.p.TakeoffAltitude
	}
	m.pendingTakeoff = true
	m.pendingTakeoffAltitude = altitude
	m.logger.Infof("Test takeoff to %.1f m requested", altitude)
	return true
}
