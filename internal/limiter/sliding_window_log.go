package limiter

import (
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// SlidingWindowLog keeps an exact log of request timestamps per key.
//
// Each call prunes timestamps at or before now-timespan, then appends now
// before comparing, so the current request counts against itself. The
// append happens even when the request is rejected: rejected attempts stay
// in the log and keep the key limited until they age out. A key's log is
// emptied by pruning but the key itself is never removed.
type SlidingWindowLog[K comparable] struct {
	clock    clock.Clock
	capacity int
	timespan int64 // milliseconds
	mu       sync.Mutex
	logs     map[K][]int64
}

// NewSlidingWindowLog creates a sliding window log.
//   - capacity: requests admitted per timespan
//   - timespan: length of the sliding window; zero keeps only the current request
//   - c: clock to read time from
func NewSlidingWindowLog[K comparable](capacity int, timespan time.Duration, c clock.Clock) *SlidingWindowLog[K] {
	return &SlidingWindowLog[K]{
		clock:    c,
		capacity: capacity,
		timespan: timespan.Milliseconds(),
		logs:     make(map[K][]int64),
	}
}

func (sl *SlidingWindowLog[K]) Check(key K) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := clock.Millis(sl.clock)
	cutoff := now - sl.timespan

	entries := sl.logs[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	sl.logs[key] = kept

	return len(kept) <= sl.capacity
}

// Len returns the number of timestamps currently logged for key, including
// entries that a later call would prune.
func (sl *SlidingWindowLog[K]) Len(key K) int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.logs[key])
}
