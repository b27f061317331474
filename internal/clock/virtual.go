package clock

import (
	"sort"
	"sync"
	"time"
)

// VirtualClock is a manually driven clock. Time only moves when Advance,
// AdvanceMillis or Set is called, which makes window boundaries and refill
// arithmetic reproducible in tests and replays.
//
// Safe for concurrent use.
type VirtualClock struct {
	mu      sync.RWMutex
	current time.Time
	timers  []timer
}

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

// NewVirtualClockAt creates a VirtualClock reading ms milliseconds since the epoch.
func NewVirtualClockAt(ms int64) *VirtualClock {
	return NewVirtualClock(FromMillis(ms))
}

func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *VirtualClock) Since(t time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Sub(t)
}

// After returns a channel that fires once the virtual time reaches now+d.
// Non-positive durations fire immediately.
func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.timers = append(c.timers, timer{deadline: c.current.Add(d), ch: ch})
	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})
	return ch
}

// Advance moves the clock forward by d. Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
	c.fireLocked()
}

// AdvanceMillis moves the clock forward by ms milliseconds.
func (c *VirtualClock) AdvanceMillis(ms int64) {
	c.Advance(time.Duration(ms) * time.Millisecond)
}

// Set jumps the clock to t. Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.current) {
		panic("clock: cannot set time to the past")
	}

	c.current = t
	c.fireLocked()
}

// SetMillis jumps the clock to ms milliseconds since the epoch.
func (c *VirtualClock) SetMillis(ms int64) {
	c.Set(FromMillis(ms))
}

// Pending reports how many After channels have not fired yet.
func (c *VirtualClock) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.timers)
}

// fireLocked delivers to every timer whose deadline has passed. Timers are
// kept sorted, so it stops at the first one still in the future.
func (c *VirtualClock) fireLocked() {
	n := 0
	for n < len(c.timers) && !c.timers[n].deadline.After(c.current) {
		c.timers[n].ch <- c.current
		n++
	}
	c.timers = c.timers[n:]
}
