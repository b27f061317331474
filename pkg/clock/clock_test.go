package clock

import (
	"testing"
	"time"
)

func TestClockImplementations(t *testing.T) {
	var _ Clock = NewRealClock()
	var _ Clock = NewVirtualClock(time.Now())
}

func TestVirtualClockAt(t *testing.T) {
	vc := NewVirtualClockAt(1704067200000)
	vc.Advance(1500 * time.Millisecond)

	if got := Millis(vc); got != 1704067201500 {
		t.Fatalf("Millis() = %d, want 1704067201500", got)
	}
}
