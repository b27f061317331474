package limiter

import (
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// FixedWindow implements the fixed window counter algorithm.
//
// Time is cut into epoch-aligned slots of the configured window length. Each
// key has a counter per slot; a request is admitted while the counter for the
// current slot is below capacity. A full slot rejects without touching state.
//
// A caller can get up to 2x capacity through around a slot boundary
// (capacity at the end of one slot, capacity at the start of the next).
// That is a property of the algorithm and is kept.
//
// Counters for old slots are never evicted.
type FixedWindow[K comparable] struct {
	clock    clock.Clock
	capacity int
	window   int64 // milliseconds
	mu       sync.Mutex
	counters map[K]map[int64]int // key -> window start -> count
}

// NewFixedWindow creates a fixed window counter.
//   - capacity: requests admitted per window
//   - window: window length
//   - c: clock to read time from
func NewFixedWindow[K comparable](capacity int, window time.Duration, c clock.Clock) *FixedWindow[K] {
	return &FixedWindow[K]{
		clock:    c,
		capacity: capacity,
		window:   windowMillis(window),
		counters: make(map[K]map[int64]int),
	}
}

func (fw *FixedWindow[K]) Check(key K) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	start := windowStart(clock.Millis(fw.clock), fw.window)

	counter := fw.counters[key]
	count := counter[start]
	if count == fw.capacity {
		return false
	}

	if counter == nil {
		counter = make(map[int64]int)
		fw.counters[key] = counter
	}
	counter[start] = count + 1
	return true
}

// Count returns the number of admitted requests for key in the current window.
func (fw *FixedWindow[K]) Count(key K) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.counters[key][windowStart(clock.Millis(fw.clock), fw.window)]
}

// Keys returns how many keys have state.
func (fw *FixedWindow[K]) Keys() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.counters)
}
