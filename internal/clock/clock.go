package clock

import "time"

// Clock is the time source every limiter reads from. Limiters never call
// time.Now directly, so tests can drive them with a VirtualClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// After returns a channel that receives the current time after duration d.
	After(d time.Duration) <-chan time.Time
}

// Millis returns the clock reading as integer milliseconds since the Unix
// epoch. All admission arithmetic is done in this unit.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// FromMillis converts a millisecond timestamp back into a time.Time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
