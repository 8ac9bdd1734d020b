//go:build linux

package clock

import "golang.org/x/sys/unix"

// Monotonic reads CLOCK_MONOTONIC. It is not affected by wall-clock steps
// (GPS time sync, NTP), which is what the stage timers rely on.
type Monotonic struct{}

func NewMonotonic() Monotonic {
	return Monotonic{}
}

func (Monotonic) Millis() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Sec*1000 + ts.Nsec/1_000_000)
}
