// Package clock provides the monotonic millisecond time base of the control
// loop. Timestamps are uint32 milliseconds and wrap around after ~49.7 days,
// so they must only ever be compared through Since and Reached.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic millisecond source.
type Clock interface {
	Millis() uint32
}

// Since returns the number of milliseconds elapsed from then to now.
func Since(now, then uint32) uint32 {
	return now - then
}

// Reached reports whether now is at or past deadline.
func Reached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// Add returns the timestamp d after t.
func Add(t uint32, d time.Duration) uint32 {
	return t + Ms(d)
}

// Ms converts a duration to whole milliseconds. Negative durations map to 0.
func Ms(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}

// Fake is a manually advanced clock for tests and simulations.
type Fake struct {
	mu sync.Mutex
	ms uint32
}

func NewFake(start uint32) *Fake {
	return &Fake{ms: start}
}

func (f *Fake) Millis() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ms
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.ms += Ms(d)
	f.mu.Unlock()
}
