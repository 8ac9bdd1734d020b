package hardware

// Linux input event constants (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evKey = 0x01

	// EVIOCGKEY(len) for a 96 byte key bitmap, enough for KEY_MAX/8.
	eviocgkey     = 0x80604518
	keyBitmapSize = 96
)

// Channel names.
const (
	ChannelAbortSwitch = "abort_switch"
	ChannelStatus      = "status"
)

const consumer = "show-controller"
