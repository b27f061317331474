package limiter

import (
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

func TestSlidingWindowCounter_WeightedPrevious(t *testing.T) {
	vc := clock.NewVirtualClockAt(1000)
	sw := NewSlidingWindowCounter[string](10, time.Second, vc)

	for i := 0; i < 10; i++ {
		if !sw.Check("user1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if sw.Check("user1") {
		t.Fatal("11th request should be denied")
	}

	// Full window later: the previous window still weighs 1.0.
	vc.SetMillis(2000)
	if got := sw.Estimate("user1"); got != 10 {
		t.Errorf("Estimate at t=2000 = %d, want 10", got)
	}
	if sw.Check("user1") {
		t.Error("t=2000 should be denied")
	}

	// Half way: previous weighs 0.5.
	vc.SetMillis(2500)
	if got := sw.Estimate("user1"); got != 5 {
		t.Errorf("Estimate at t=2500 = %d, want 5", got)
	}
	if !sw.Check("user1") {
		t.Error("t=2500 should be allowed")
	}
}

func TestSlidingWindowCounter_AdmitsUntilEstimateReachesCapacity(t *testing.T) {
	vc := clock.NewVirtualClockAt(1000)
	sw := NewSlidingWindowCounter[string](10, time.Second, vc)

	for i := 0; i < 10; i++ {
		sw.Check("user1")
	}
	vc.SetMillis(2500)

	admitted := 0
	for i := 0; i < 10; i++ {
		if sw.Check("user1") {
			admitted++
		}
	}
	if admitted != 5 {
		t.Errorf("admitted %d at half weight, want 5", admitted)
	}
}

func TestSlidingWindowCounter_FloorOfWeightedCount(t *testing.T) {
	vc := clock.NewVirtualClockAt(0)
	sw := NewSlidingWindowCounter[string](3, time.Second, vc)

	for i := 0; i < 3; i++ {
		sw.Check("user1")
	}
	// 3 * (1 - 1/1000) = 2.997, floored to 2.
	vc.SetMillis(1001)
	if got := sw.Estimate("user1"); got != 2 {
		t.Errorf("Estimate = %d, want 2", got)
	}
	if !sw.Check("user1") {
		t.Error("estimate 2 < 3 should be allowed")
	}
	if sw.Check("user1") {
		t.Error("estimate 3 should be denied")
	}
}

func TestSlidingWindowCounter_OldWindowsIgnored(t *testing.T) {
	vc := clock.NewVirtualClockAt(0)
	sw := NewSlidingWindowCounter[string](2, time.Second, vc)

	sw.Check("user1")
	sw.Check("user1")

	// Two windows later the first window is neither current nor previous.
	vc.SetMillis(2000)
	if got := sw.Estimate("user1"); got != 0 {
		t.Errorf("Estimate = %d, want 0", got)
	}
	if !sw.Check("user1") {
		t.Error("should be allowed")
	}
}

func TestSlidingWindowCounter_RejectDoesNotMutate(t *testing.T) {
	vc := clock.NewVirtualClockAt(0)
	sw := NewSlidingWindowCounter[string](1, time.Second, vc)

	sw.Check("user1")
	for i := 0; i < 5; i++ {
		sw.Check("user1")
	}
	vc.SetMillis(1999)
	// previous=1, weight=0.001, floor -> 0; current untouched by the rejects.
	if !sw.Check("user1") {
		t.Error("rejections must not have inflated the counter")
	}
}

func TestSlidingWindowCounter_ZeroCapacity(t *testing.T) {
	sw := NewSlidingWindowCounter[string](0, time.Second, clock.NewVirtualClockAt(0))
	if sw.Check("user1") {
		t.Error("capacity 0 should always reject")
	}
}

func TestSlidingWindowLog_Exactness(t *testing.T) {
	const (
		capacity = 3
		t0       = int64(10_000)
		timespan = time.Second
	)

	admitAll := func(vc *clock.VirtualClock) *SlidingWindowLog[string] {
		sl := NewSlidingWindowLog[string](capacity, timespan, vc)
		for i := 0; i < capacity; i++ {
			if !sl.Check("user1") {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}
		return sl
	}

	t.Run("just before expiry", func(t *testing.T) {
		vc := clock.NewVirtualClockAt(t0)
		sl := admitAll(vc)
		vc.SetMillis(t0 + timespan.Milliseconds() - 1)
		if sl.Check("user1") {
			t.Error("t0+T-1 should be denied")
		}
	})

	t.Run("just after expiry", func(t *testing.T) {
		vc := clock.NewVirtualClockAt(t0)
		sl := admitAll(vc)
		vc.SetMillis(t0 + timespan.Milliseconds() + 1)
		if !sl.Check("user1") {
			t.Error("t0+T+1 should be allowed")
		}
		if got := sl.Len("user1"); got != 1 {
			t.Errorf("Len = %d, want 1 after pruning", got)
		}
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		vc := clock.NewVirtualClockAt(t0)
		sl := admitAll(vc)
		vc.SetMillis(t0 + timespan.Milliseconds())
		if !sl.Check("user1") {
			t.Error("timestamps at now-timespan are pruned, should be allowed")
		}
	})
}

func TestSlidingWindowLog_RejectedAttemptsAreLogged(t *testing.T) {
	vc := clock.NewVirtualClockAt(0)
	sl := NewSlidingWindowLog[string](1, time.Second, vc)

	sl.Check("user1")
	vc.SetMillis(500)
	if sl.Check("user1") {
		t.Fatal("second request should be denied")
	}
	if got := sl.Len("user1"); got != 2 {
		t.Fatalf("Len = %d, want 2 (rejected attempt is kept)", got)
	}

	// The first entry has aged out but the rejected one at 500 has not.
	vc.SetMillis(1200)
	if sl.Check("user1") {
		t.Error("rejected attempt at t=500 should still count")
	}

	vc.SetMillis(2300)
	if !sl.Check("user1") {
		t.Error("all entries expired, should be allowed")
	}
}

func TestSlidingWindowLog_ZeroTimespan(t *testing.T) {
	vc := clock.NewVirtualClockAt(0)
	sl := NewSlidingWindowLog[string](1, 0, vc)

	for i := 0; i < 5; i++ {
		if !sl.Check("user1") {
			t.Fatalf("request %d: zero timespan should always admit", i+1)
		}
	}
}

func TestSlidingWindowLog_ZeroCapacity(t *testing.T) {
	sl := NewSlidingWindowLog[string](0, time.Second, clock.NewVirtualClockAt(0))
	if sl.Check("user1") {
		t.Error("capacity 0 should always reject")
	}
}
