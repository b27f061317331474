package limiter

import (
	"testing"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

func TestTokenBucket_StartsFull(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	tb := NewTokenBucket[string](5, 0, vc)

	for i := 0; i < 5; i++ {
		if !tb.Check("user1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if tb.Check("user1") {
		t.Error("6th request should be denied")
	}
	if tokens, _ := tb.Tokens("user1"); tokens != 0 {
		t.Errorf("Tokens = %d, want 0", tokens)
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	tb := NewTokenBucket[string](1, 0, vc)

	tb.Check("user1")
	vc.AdvanceMillis(1_000_000)
	if tb.Check("user1") {
		t.Error("zero refill rate should never regenerate tokens")
	}
}

func TestTokenBucket_Conservation(t *testing.T) {
	const capacity = 5
	// 1 token per 100ms.
	const rate = 0.01

	deltas := []int64{0, 99, 100, 250, 499, 500, 10_000}
	for _, delta := range deltas {
		vc := clock.NewVirtualClockAt(epochMillis)
		tb := NewTokenBucket[string](capacity, rate, vc)

		for i := 0; i < capacity; i++ {
			tb.Check("user1")
		}
		vc.AdvanceMillis(delta)

		admitted := 0
		for tb.Check("user1") {
			admitted++
			if admitted > capacity {
				break
			}
		}

		want := min(capacity, int(float64(delta)*rate))
		if admitted != want {
			t.Errorf("delta=%dms: admitted %d, want %d", delta, admitted, want)
		}
	}
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	tb := NewTokenBucket[string](3, 1, vc)

	tb.Check("user1")
	vc.AdvanceMillis(1_000_000)
	tb.Check("user1")

	tokens, ok := tb.Tokens("user1")
	if !ok {
		t.Fatal("bucket should exist")
	}
	if tokens != 2 {
		t.Errorf("Tokens = %d, want 2 (capped at capacity then one spent)", tokens)
	}
}

func TestTokenBucket_RejectKeepsTimestamp(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	// 1 token per second.
	tb := NewTokenBucket[string](1, 0.001, vc)

	tb.Check("user1")

	// Rejections part way through the refill period must not reset it.
	for i := 0; i < 9; i++ {
		vc.AdvanceMillis(100)
		if tb.Check("user1") {
			t.Fatalf("check at +%dms should be denied", (i+1)*100)
		}
	}

	vc.AdvanceMillis(100)
	if !tb.Check("user1") {
		t.Error("elapsed time accumulated across rejections, should be allowed")
	}
}

func TestTokenBucket_ZeroCapacity(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	tb := NewTokenBucket[string](0, 1, vc)

	vc.AdvanceMillis(1000)
	if tb.Check("user1") {
		t.Error("capacity 0 should always reject")
	}
}

func TestTokenBucket_IndependentKeys(t *testing.T) {
	vc := clock.NewVirtualClockAt(epochMillis)
	tb := NewTokenBucket[string](1, 0, vc)

	if !tb.Check("a") || !tb.Check("b") {
		t.Fatal("each key should start with a full bucket")
	}
	if tb.Check("a") {
		t.Error("a should be exhausted")
	}
	if _, ok := tb.Tokens("c"); ok {
		t.Error("untouched key should have no bucket")
	}
}
