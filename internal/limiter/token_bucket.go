package limiter

import (
	"math"
	"sync"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// TokenBucket implements the token bucket algorithm.
//
// Each key starts with a full bucket. On every call the bucket is refilled by
// floor(elapsed * refillRate) tokens, capped at capacity. If the refilled
// count is positive the request is admitted, one token is spent and the
// refill timestamp moves to now.
//
// A rejected call leaves the bucket untouched, including the timestamp, so
// elapsed time keeps accumulating until enough for a whole token.
//
// Buckets are kept for every key ever seen.
type TokenBucket[K comparable] struct {
	clock      clock.Clock
	capacity   int
	refillRate float64 // tokens per millisecond
	mu         sync.Mutex
	buckets    map[K]bucket
}

type bucket struct {
	tokens    int
	updatedAt int64 // milliseconds
}

// NewTokenBucket creates a token bucket limiter.
//   - capacity: bucket size, and the tokens each key starts with
//   - refillRate: tokens added per millisecond; zero never refills
//   - c: clock to read time from
func NewTokenBucket[K comparable](capacity int, refillRate float64, c clock.Clock) *TokenBucket[K] {
	return &TokenBucket[K]{
		clock:      c,
		capacity:   capacity,
		refillRate: refillRate,
		buckets:    make(map[K]bucket),
	}
}

func (tb *TokenBucket[K]) Check(key K) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := clock.Millis(tb.clock)

	b, ok := tb.buckets[key]
	if !ok {
		b = bucket{tokens: tb.capacity, updatedAt: now}
		tb.buckets[key] = b
	}

	refilled := tb.refill(b, now)
	if refilled <= 0 {
		return false
	}

	tb.buckets[key] = bucket{tokens: refilled - 1, updatedAt: now}
	return true
}

// Tokens returns the stored (not refilled) token count for key.
func (tb *TokenBucket[K]) Tokens(key K) (int, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	b, ok := tb.buckets[key]
	return b.tokens, ok
}

func (tb *TokenBucket[K]) refill(b bucket, now int64) int {
	added := math.Floor(float64(now-b.updatedAt) * tb.refillRate)
	return int(math.Min(float64(tb.capacity), float64(b.tokens)+added))
}
