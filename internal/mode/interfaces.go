package mode

import (
	"time"

	"show-controller/internal/config"
	"show-controller/internal/types"
)

// ShowManager owns the show: trajectory, authorization and schedule. The
// mode only reads it.
type ShowManager interface {
	IsAuthorized() bool
	HasValidTrajectory() bool

	// StartTime is the scheduled takeoff time; the zero value means no
	// start time is set.
	StartTime() time.Time
	// ElapsedTimeSinceStart is negative before the start time.
	ElapsedTimeSinceStart() time.Duration
	TrajectoryDuration() time.Duration
	// TrajectoryRevision changes whenever the trajectory is replaced.
	TrajectoryRevision() uint64

	CurrentLocation() (types.Location, bool)
	// RelativeTargetPosition is the trajectory point at t, relative to the
	// takeoff position.
	RelativeTargetPosition(t time.Duration) (types.Vector3, bool)
	TargetLocation(t time.Duration) (types.Location, bool)

	// CancelRequested polls the abort signal (ground command or local
	// safety trigger). It is level-triggered, not latched.
	CancelRequested() bool
}

// Vehicle is the flight stack underneath the mode. Every method must return
// immediately.
type Vehicle interface {
	// State
	Armed() bool
	Landed() bool

	// Arming and home
	Arm(method types.ArmingMethod) bool
	Disarm() bool
	SetHome(loc types.Location) bool

	// Preflight. PreflightCalibrate starts or polls the calibration and
	// reports true once it has finished.
	PreflightCalibrate() bool
	PrearmChecks() bool

	// Flight primitives. Start methods report false if the vehicle refused.
	TakeoffStart(altitude float64) bool
	TakeoffRun()
	TakeoffComplete() bool

	GuidedStart() bool
	GuidedSetPosition(target types.Vector3)
	GuidedRun()

	LandStart() bool
	LandRun()

	RTLStart() bool
	RTLRun()
	RTLComplete() bool

	LoiterStart() bool
	LoiterRun()

	// IdleRun keeps the motors at ground idle (or stopped when disarmed).
	IdleRun()
}

// Notifier forwards stage changes and status text to ground control. It
// must not block.
type Notifier interface {
	StageChanged(from, to types.Stage, reason string)
	SendText(severity types.Severity, text string)
}

// ParamSource provides the live parameter table and a version that changes
// whenever the table does.
type ParamSource interface {
	Load() (config.Params, uint64)
}
