package metrics

import (
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
)

// queueLener is implemented by limiters that hold a queue, such as
// limiter.LeakyBucket.
type queueLener interface {
	QueueLen() int
}

// Limiter wraps a limiter.Limiter and records every decision.
type Limiter[K comparable] struct {
	name      string
	next      limiter.Limiter[K]
	collector *Collector
}

// Instrument returns lim wrapped so that each Check is counted under name.
// Limiters with a queue also get a depth gauge.
func Instrument[K comparable](name string, lim limiter.Limiter[K], c *Collector) *Limiter[K] {
	if q, ok := lim.(queueLener); ok {
		_ = c.TrackQueue(name, q.QueueLen)
	}
	return &Limiter[K]{name: name, next: lim, collector: c}
}

func (l *Limiter[K]) Check(key K) bool {
	allowed := l.next.Check(key)
	l.collector.RecordDecision(l.name, allowed)
	return allowed
}

// Unwrap returns the instrumented limiter.
func (l *Limiter[K]) Unwrap() limiter.Limiter[K] {
	return l.next
}

type countingDispatcher struct {
	name      string
	next      limiter.Dispatcher
	collector *Collector
}

// Dispatcher wraps d so that every dispatched item is counted under name.
func (c *Collector) Dispatcher(name string, d limiter.Dispatcher) limiter.Dispatcher {
	return &countingDispatcher{name: name, next: d, collector: c}
}

func (d *countingDispatcher) Dispatch(task func()) {
	d.collector.RecordDispatch(d.name)
	d.next.Dispatch(task)
}
