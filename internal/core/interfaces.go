package core

import (
	"time"

	"show-controller/internal/hardware"
	"show-controller/internal/messaging"
	"show-controller/internal/mode"
	"show-controller/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by ShowSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// Settings
	GetHashField(hash, field string) (string, error)

	// Ground control reporting
	PublishStage(session, from, to, reason string, at time.Time) error
	PublishText(session, severity, text string, at time.Time) error
	PublishStatus(fields map[string]interface{}) error
}

// HardwareIO defines the interface for hardware I/O operations needed by ShowSystem
type HardwareIO interface {
	Initialize() error
	Cleanup()

	ReadDigitalInput(channel string) (bool, error)
	WriteDigitalOutput(channel string, value bool) error
	RegisterInputCallback(channel string, callback hardware.InputCallback)
}

// FlightVehicle is the vehicle flown by the mode. Step is called once per
// control cycle before the mode runs.
type FlightVehicle interface {
	mode.Vehicle

	Location() (types.Location, bool)
	Home() (types.Location, bool)

	Step(dt time.Duration)
	SetArmingGate(gate func(method types.ArmingMethod) bool)
}
