package types

// Stage is the execution stage of the drone show mode.
type Stage string

const (
	StageOff              Stage = "off"
	StageInit             Stage = "init"
	StageWaitForStartTime Stage = "wait-for-start-time"
	StageTakeoff          Stage = "takeoff"
	StagePerforming       Stage = "performing"
	StageLanding          Stage = "landing"
	StageRTL              Stage = "rtl"
	StageLoiter           Stage = "loiter"
	StageLanded           Stage = "landed"
	StageError            Stage = "error"
)

// Valid reports whether s is one of the known stages. The zero value is not
// valid and is used to mark "not assigned yet".
func (s Stage) Valid() bool {
	switch s {
	case StageOff, StageInit, StageWaitForStartTime, StageTakeoff, StagePerforming,
		StageLanding, StageRTL, StageLoiter, StageLanded, StageError:
		return true
	}
	return false
}

// ArmingMethod identifies who asked for the motors to be armed.
type ArmingMethod string

const (
	ArmingMethodUnknown   ArmingMethod = "unknown"
	ArmingMethodRC        ArmingMethod = "rc"
	ArmingMethodGCS       ArmingMethod = "gcs"
	ArmingMethodScripting ArmingMethod = "scripting"
	ArmingMethodShow      ArmingMethod = "show" // scheduled start of an authorized show
)

// Severity of a message sent to ground control.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityNotice
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
