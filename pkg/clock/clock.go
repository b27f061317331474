// Package clock exposes the time sources admit's limiters read from.
package clock

import (
	"time"

	internalclock "github.com/SmitUplenchwar2687/admit/internal/clock"
)

// Clock abstracts time so limiters work with both real and virtual time.
type Clock = internalclock.Clock

// RealClock delegates to the standard time package.
type RealClock = internalclock.RealClock

// VirtualClock is a manually advanced clock for tests and replays.
type VirtualClock = internalclock.VirtualClock

func NewRealClock() *RealClock {
	return internalclock.NewRealClock()
}

// NewVirtualClock creates a virtual clock starting at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return internalclock.NewVirtualClock(start)
}

// NewVirtualClockAt creates a virtual clock at ms milliseconds since the
// Unix epoch.
func NewVirtualClockAt(ms int64) *VirtualClock {
	return internalclock.NewVirtualClockAt(ms)
}

// Millis reads c as milliseconds since the Unix epoch.
func Millis(c Clock) int64 {
	return internalclock.Millis(c)
}
