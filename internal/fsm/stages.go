package fsm

import "show-controller/internal/types"

// Reasons attached to transitions; published to ground control with every
// stage change.
const (
	ReasonModeEntered       = "mode-entered"
	ReasonModeExited        = "mode-exited"
	ReasonPreflightComplete = "preflight-complete"
	ReasonStartTimeReached  = "start-time-reached"
	ReasonTestTakeoff       = "test-takeoff"
	ReasonCancelled         = "cancelled"
	ReasonAuthRevoked       = "authorization-revoked"
	ReasonTrajectoryLost    = "trajectory-lost"
	ReasonScheduleChanged   = "schedule-changed"
	ReasonTrajectoryChanged = "trajectory-changed"
	ReasonMotorStartMissed  = "motor-start-deadline-missed"
	ReasonTakeoffComplete   = "takeoff-complete"
	ReasonTakeoffTimeout    = "takeoff-timeout"
	ReasonTakeoffRefused    = "takeoff-refused"
	ReasonGuidedRefused     = "guided-refused"
	ReasonShowComplete      = "show-complete"
	ReasonTouchdown         = "touchdown"
	ReasonReturned          = "returned-to-launch"
	ReasonRTLRefused        = "rtl-refused"
	ReasonDisarmed          = "disarmed"
)

// Stages of the show mode, in the order they normally occur.
var Stages = []types.Stage{
	types.StageOff,
	types.StageInit,
	types.StageWaitForStartTime,
	types.StageTakeoff,
	types.StagePerforming,
	types.StageLanding,
	types.StageRTL,
	types.StageLoiter,
	types.StageLanded,
	types.StageError,
}
