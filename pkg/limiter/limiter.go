// Package limiter is the public face of admit's admission algorithms.
//
// Every algorithm is generic over its key type and reads time from an
// injected clock:
//
//	vc := clock.NewVirtualClock(start)
//	fw := limiter.NewFixedWindow[string](10, time.Second, vc)
//	if fw.Check("user-1") { ... }
//
// The leaky bucket also queues admitted keys and leaks them to subscribed
// handlers; see LeakyBucket.
package limiter

import (
	"time"

	internallimiter "github.com/SmitUplenchwar2687/admit/internal/limiter"
	"github.com/SmitUplenchwar2687/admit/pkg/clock"
)

// Algorithm names an admission algorithm.
type Algorithm = internallimiter.Algorithm

const (
	AlgorithmFixedWindow          = internallimiter.AlgorithmFixedWindow
	AlgorithmSlidingWindowCounter = internallimiter.AlgorithmSlidingWindowCounter
	AlgorithmSlidingWindowLog     = internallimiter.AlgorithmSlidingWindowLog
	AlgorithmTokenBucket          = internallimiter.AlgorithmTokenBucket
	AlgorithmLeakyBucket          = internallimiter.AlgorithmLeakyBucket
)

// ErrUnknownAlgorithm is returned by New for an unrecognised Algorithm.
var ErrUnknownAlgorithm = internallimiter.ErrUnknownAlgorithm

// Limiter decides whether a key may proceed now.
type Limiter[K comparable] = internallimiter.Limiter[K]

// Config selects and parameterises an algorithm for New.
type Config = internallimiter.Config

type (
	FixedWindow[K comparable]          = internallimiter.FixedWindow[K]
	SlidingWindowCounter[K comparable] = internallimiter.SlidingWindowCounter[K]
	SlidingWindowLog[K comparable]     = internallimiter.SlidingWindowLog[K]
	TokenBucket[K comparable]          = internallimiter.TokenBucket[K]
	LeakyBucket[K comparable]          = internallimiter.LeakyBucket[K]
)

// Handler consumes items leaked from a LeakyBucket.
type Handler[K comparable] = internallimiter.Handler[K]

// FuncHandler adapts a function to Handler.
type FuncHandler[K comparable] = internallimiter.FuncHandler[K]

// Dispatcher runs the work a LeakyBucket hands to its handlers.
type Dispatcher = internallimiter.Dispatcher

type (
	InlineDispatcher = internallimiter.InlineDispatcher
	Pool             = internallimiter.Pool
	LeakyOption      = internallimiter.LeakyOption
)

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return internallimiter.Algorithms()
}

// New builds a string-keyed limiter from cfg. Rates in cfg are per second.
func New(cfg Config, c clock.Clock, opts ...LeakyOption) (Limiter[string], error) {
	return internallimiter.New(cfg, c, opts...)
}

// PerMillisecond converts a per-second rate into the per-millisecond rate
// the bucket constructors take.
func PerMillisecond(perSecond float64) float64 {
	return internallimiter.PerMillisecond(perSecond)
}

func NewFixedWindow[K comparable](capacity int, window time.Duration, c clock.Clock) *FixedWindow[K] {
	return internallimiter.NewFixedWindow[K](capacity, window, c)
}

func NewSlidingWindowCounter[K comparable](capacity int, window time.Duration, c clock.Clock) *SlidingWindowCounter[K] {
	return internallimiter.NewSlidingWindowCounter[K](capacity, window, c)
}

func NewSlidingWindowLog[K comparable](capacity int, timespan time.Duration, c clock.Clock) *SlidingWindowLog[K] {
	return internallimiter.NewSlidingWindowLog[K](capacity, timespan, c)
}

// NewTokenBucket creates a token bucket refilling refillRate tokens per
// millisecond.
func NewTokenBucket[K comparable](capacity int, refillRate float64, c clock.Clock) *TokenBucket[K] {
	return internallimiter.NewTokenBucket[K](capacity, refillRate, c)
}

// NewLeakyBucket creates a leaky bucket draining drainRate items per
// millisecond.
func NewLeakyBucket[K comparable](capacity int, drainRate float64, c clock.Clock, opts ...LeakyOption) *LeakyBucket[K] {
	return internallimiter.NewLeakyBucket[K](capacity, drainRate, c, opts...)
}

// WithDispatcher sets how a LeakyBucket hands items to handlers.
func WithDispatcher(d Dispatcher) LeakyOption {
	return internallimiter.WithDispatcher(d)
}

// NewPool returns a Dispatcher that runs each item on its own goroutine.
func NewPool() *Pool {
	return internallimiter.NewPool()
}

func NewFuncHandler[K comparable](fn func(K)) *FuncHandler[K] {
	return internallimiter.NewFuncHandler(fn)
}
