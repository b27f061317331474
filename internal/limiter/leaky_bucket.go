package limiter

import (
	"math"
	"sync"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// LeakyBucket queues admitted keys in one FIFO shared by all callers and
// leaks them to subscribed handlers at a fixed rate.
//
// The bucket drains lazily: every Add first computes how many items the
// elapsed time allows through, then hands up to that many queue heads to
// idle handlers, one item per handler. Only after draining does Add decide
// whether the queue has room for the new key.
//
// A drain that computes zero tokens is a no-op and leaves the drain
// timestamp alone, so fractional progress accumulates across calls. A drain
// with no idle handlers still advances the timestamp and the tokens are lost.
type LeakyBucket[K comparable] struct {
	clock      clock.Clock
	capacity   int
	drainRate  float64 // items per millisecond
	dispatcher Dispatcher

	mu        sync.Mutex
	queue     []K
	handlers  []Handler[K]
	lastDrain int64 // milliseconds
}

type leakyConfig struct {
	dispatcher Dispatcher
}

// LeakyOption configures a LeakyBucket.
type LeakyOption func(*leakyConfig)

// WithDispatcher sets how dequeued items are handed to handlers. The default
// is InlineDispatcher.
func WithDispatcher(d Dispatcher) LeakyOption {
	return func(c *leakyConfig) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// NewLeakyBucket creates a leaky bucket.
//   - capacity: maximum queue length
//   - drainRate: items leaked per millisecond
//   - c: clock to read time from; the drain timestamp starts at its current reading
func NewLeakyBucket[K comparable](capacity int, drainRate float64, c clock.Clock, opts ...LeakyOption) *LeakyBucket[K] {
	cfg := leakyConfig{dispatcher: InlineDispatcher{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &LeakyBucket[K]{
		clock:      c,
		capacity:   capacity,
		drainRate:  drainRate,
		dispatcher: cfg.dispatcher,
		lastDrain:  clock.Millis(c),
	}
}

// Add drains the bucket, then enqueues key if there is room.
func (lb *LeakyBucket[K]) Add(key K) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.drainLocked()

	if len(lb.queue) >= lb.capacity {
		return false
	}
	lb.queue = append(lb.queue, key)
	return true
}

// Check is Add, so a LeakyBucket can be used wherever a Limiter is expected.
func (lb *LeakyBucket[K]) Check(key K) bool {
	return lb.Add(key)
}

// Subscribe appends h to the handler list. Handlers receive work in
// subscription order.
func (lb *LeakyBucket[K]) Subscribe(h Handler[K]) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.handlers = append(lb.handlers, h)
}

// Unsubscribe removes every entry equal to h. Work already dispatched to h
// is not recalled.
func (lb *LeakyBucket[K]) Unsubscribe(h Handler[K]) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	kept := lb.handlers[:0]
	for _, existing := range lb.handlers {
		if existing != h {
			kept = append(kept, existing)
		}
	}
	clear(lb.handlers[len(kept):])
	lb.handlers = kept
}

// Drain leaks whatever the elapsed time allows and returns the number of
// items dispatched.
func (lb *LeakyBucket[K]) Drain() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.drainLocked()
}

// QueueLen returns the number of keys waiting in the queue.
func (lb *LeakyBucket[K]) QueueLen() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.queue)
}

// Pending returns a copy of the queue, head first.
func (lb *LeakyBucket[K]) Pending() []K {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	out := make([]K, len(lb.queue))
	copy(out, lb.queue)
	return out
}

// Handlers returns the number of subscribed handlers.
func (lb *LeakyBucket[K]) Handlers() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.handlers)
}

// Capacity returns the maximum queue length.
func (lb *LeakyBucket[K]) Capacity() int {
	return lb.capacity
}

func (lb *LeakyBucket[K]) drainLocked() int {
	now := clock.Millis(lb.clock)

	leaked := math.Floor(float64(now-lb.lastDrain) * lb.drainRate)
	tokens := int(math.Min(float64(lb.capacity), leaked))
	if tokens <= 0 {
		return 0
	}
	lb.lastDrain = now

	idle := make([]Handler[K], 0, len(lb.handlers))
	for _, h := range lb.handlers {
		if !h.Busy() {
			idle = append(idle, h)
		}
	}

	n := min(tokens, len(idle), len(lb.queue))
	for i := 0; i < n; i++ {
		item := lb.queue[0]
		var zero K
		lb.queue[0] = zero
		lb.queue = lb.queue[1:]

		h := idle[i]
		h.SetBusy(true)
		lb.dispatcher.Dispatch(func() {
			defer h.SetBusy(false)
			h.Run(item)
		})
	}
	return n
}
