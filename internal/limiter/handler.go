package limiter

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/admit/internal/log"
)

// Handler consumes items leaked from a LeakyBucket.
//
// The bucket only hands work to handlers whose Busy reports false, and marks
// a handler busy before dispatching to it. Handlers are compared by identity
// on Unsubscribe, so implementations should be pointer types.
type Handler[K comparable] interface {
	Run(item K)
	Busy() bool
	SetBusy(busy bool)
}

// FuncHandler adapts a function to the Handler interface.
type FuncHandler[K comparable] struct {
	fn   func(K)
	busy atomic.Bool
}

// NewFuncHandler returns a handler that calls fn for every item.
func NewFuncHandler[K comparable](fn func(K)) *FuncHandler[K] {
	return &FuncHandler[K]{fn: fn}
}

// Run marks the handler busy for the duration of fn. Calling it directly,
// outside a bucket, behaves the same.
func (h *FuncHandler[K]) Run(item K) {
	h.busy.Store(true)
	defer h.busy.Store(false)
	h.fn(item)
}

func (h *FuncHandler[K]) Busy() bool {
	return h.busy.Load()
}

func (h *FuncHandler[K]) SetBusy(busy bool) {
	h.busy.Store(busy)
}

// NewLoggingHandler returns a handler that logs each item it receives.
func NewLoggingHandler[K comparable]() *FuncHandler[K] {
	return NewFuncHandler(func(item K) {
		log.Logger().Info("running key", zap.Any("key", item))
	})
}
