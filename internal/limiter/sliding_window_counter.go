package limiter

import (
	"math"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// SlidingWindowCounter approximates a sliding window from two fixed windows.
//
// The estimate for a request at now is
//
//	current + floor(previous * (1 - elapsed/window))
//
// where elapsed is the time since the current window started. A request is
// admitted while the estimate is below capacity, and only the current
// window's raw counter is incremented. The weighting is recomputed on every
// call and never stored.
//
// Windows older than the previous one are dropped on admit.
type SlidingWindowCounter[K comparable] struct {
	clock    clock.Clock
	capacity int
	window   int64 // milliseconds
	mu       sync.Mutex
	counters map[K]map[int64]int
}

// NewSlidingWindowCounter creates a sliding window counter.
//   - capacity: requests admitted per sliding window
//   - window: window length
//   - c: clock to read time from
func NewSlidingWindowCounter[K comparable](capacity int, window time.Duration, c clock.Clock) *SlidingWindowCounter[K] {
	return &SlidingWindowCounter[K]{
		clock:    c,
		capacity: capacity,
		window:   windowMillis(window),
		counters: make(map[K]map[int64]int),
	}
}

func (sw *SlidingWindowCounter[K]) Check(key K) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := clock.Millis(sw.clock)
	start := windowStart(now, sw.window)
	prevStart := start - sw.window

	counter := sw.counters[key]
	current := counter[start]
	if sw.estimate(current, counter[prevStart], now-start) >= sw.capacity {
		return false
	}

	if counter == nil {
		counter = make(map[int64]int)
		sw.counters[key] = counter
	}
	counter[start] = current + 1
	for ws := range counter {
		if ws < prevStart {
			delete(counter, ws)
		}
	}
	return true
}

// Estimate returns the weighted request count key would be checked against now.
func (sw *SlidingWindowCounter[K]) Estimate(key K) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := clock.Millis(sw.clock)
	start := windowStart(now, sw.window)
	counter := sw.counters[key]
	return sw.estimate(counter[start], counter[start-sw.window], now-start)
}

func (sw *SlidingWindowCounter[K]) estimate(current, previous int, elapsed int64) int {
	weight := 1 - float64(elapsed)/float64(sw.window)
	return current + int(math.Floor(float64(previous)*weight))
}
