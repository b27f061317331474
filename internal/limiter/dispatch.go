package limiter

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/admit/internal/log"
)

// Dispatcher runs the work a LeakyBucket hands to a handler.
type Dispatcher interface {
	Dispatch(task func())
}

// InlineDispatcher runs each task on the calling goroutine, while the bucket
// lock is held. Handlers used with it must not call back into the bucket.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(task func()) {
	task()
}

// Pool runs each task on its own goroutine, outside the bucket lock. The
// number of concurrent tasks is bounded by the number of subscribed handlers,
// since a busy handler receives no new work.
type Pool struct {
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewPool() *Pool {
	return &Pool{}
}

func (p *Pool) Dispatch(task func()) {
	p.wg.Add(1)
	p.inFlight.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				log.Logger().Error("handler panicked", zap.Any("panic", r))
			}
		}()
		task()
	}()
}

// Wait blocks until every dispatched task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns the number of tasks still running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}
