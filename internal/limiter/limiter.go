package limiter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
)

// ErrUnknownAlgorithm is returned by New for an unrecognised Algorithm.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Algorithm identifies an admission-control algorithm.
type Algorithm string

const (
	AlgorithmFixedWindow          Algorithm = "fixed_window"
	AlgorithmSlidingWindowCounter Algorithm = "sliding_window_counter"
	AlgorithmSlidingWindowLog     Algorithm = "sliding_window_log"
	AlgorithmTokenBucket          Algorithm = "token_bucket"
	AlgorithmLeakyBucket          Algorithm = "leaky_bucket"
)

// Algorithms lists every supported algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{
		AlgorithmFixedWindow,
		AlgorithmSlidingWindowCounter,
		AlgorithmSlidingWindowLog,
		AlgorithmTokenBucket,
		AlgorithmLeakyBucket,
	}
}

// AlgorithmNames returns the supported algorithms as a comma-separated list.
func AlgorithmNames() string {
	algos := Algorithms()
	names := make([]string, len(algos))
	for i, a := range algos {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// Valid reports whether a names a supported algorithm.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms() {
		if a == known {
			return true
		}
	}
	return false
}

// Limiter decides, per key, whether a unit of work may proceed right now.
// Check returns true to admit and false to reject. Implementations are safe
// for concurrent use.
type Limiter[K comparable] interface {
	Check(key K) bool
}

// Config holds the parameters for building a limiter with New.
type Config struct {
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
	// Capacity is the per-window request count (window algorithms), bucket
	// size (token bucket) or queue length (leaky bucket).
	Capacity int `json:"capacity" yaml:"capacity"`
	// Window is the window length or log timespan. Unused by the buckets.
	Window time.Duration `json:"window" yaml:"window"`
	// RatePerSecond is the refill rate (token bucket) or drain rate (leaky
	// bucket). Unused by the window algorithms.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
}

// PerMillisecond converts a per-second rate into the per-millisecond rate the
// buckets compute with.
func PerMillisecond(perSecond float64) float64 {
	return perSecond / 1000
}

// New builds a string-keyed limiter for cfg. opts only apply to the leaky
// bucket.
func New(cfg Config, clk clock.Clock, opts ...LeakyOption) (Limiter[string], error) {
	switch cfg.Algorithm {
	case AlgorithmFixedWindow:
		return NewFixedWindow[string](cfg.Capacity, cfg.Window, clk), nil
	case AlgorithmSlidingWindowCounter:
		return NewSlidingWindowCounter[string](cfg.Capacity, cfg.Window, clk), nil
	case AlgorithmSlidingWindowLog:
		return NewSlidingWindowLog[string](cfg.Capacity, cfg.Window, clk), nil
	case AlgorithmTokenBucket:
		return NewTokenBucket[string](cfg.Capacity, PerMillisecond(cfg.RatePerSecond), clk), nil
	case AlgorithmLeakyBucket:
		return NewLeakyBucket[string](cfg.Capacity, PerMillisecond(cfg.RatePerSecond), clk, opts...), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
}

// windowMillis converts a window length to milliseconds. Windows shorter
// than a millisecond are treated as one millisecond.
func windowMillis(d time.Duration) int64 {
	if ms := d.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

// windowStart returns floor(now/w)*w, flooring toward negative infinity.
func windowStart(now, w int64) int64 {
	q := now / w
	if now%w != 0 && now < 0 {
		q--
	}
	return q * w
}
