package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
	"github.com/SmitUplenchwar2687/admit/internal/recorder"
)

// ErrNoRecords is returned by Run when nothing has been loaded.
var ErrNoRecords = errors.New("no records loaded")

// Replayer feeds recorded traffic through a limiter on a virtual clock.
type Replayer struct {
	records []recorder.TrafficRecord
	limiter limiter.Limiter[string]
	clock   *clock.VirtualClock
	opts    Options
}

// Options control pacing and selection.
type Options struct {
	// Speed scales the real-time pause between records: 1 is real time,
	// 10 is ten times faster, 0 does not pause at all.
	Speed  float64
	Filter Filter
	// Pacer is the clock used for the pauses. Defaults to the real clock.
	Pacer clock.Clock
}

// Result is the outcome of one replayed record.
type Result struct {
	Record  recorder.TrafficRecord `json:"record"`
	Allowed bool                   `json:"allowed"`
	Time    time.Time              `json:"time"` // virtual time of the decision
}

// Summary aggregates a replay.
type Summary struct {
	TotalRecords int                   `json:"total_records"`
	Filtered     int                   `json:"filtered"`
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Denied       int                   `json:"denied"`
	Duration     time.Duration         `json:"duration"`      // virtual span
	WallDuration time.Duration         `json:"wall_duration"` // real time taken
	PerKey       map[string]KeySummary `json:"per_key"`
}

type KeySummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

func (s *Summary) add(key string, allowed bool) {
	s.Replayed++
	ks := s.PerKey[key]
	if allowed {
		s.Allowed++
		ks.Allowed++
	} else {
		s.Denied++
		ks.Denied++
	}
	s.PerKey[key] = ks
}

// New creates a replayer. lim must read time from vc.
func New(lim limiter.Limiter[string], vc *clock.VirtualClock, opts Options) *Replayer {
	if opts.Speed < 0 {
		opts.Speed = 0
	}
	if opts.Pacer == nil {
		opts.Pacer = clock.NewRealClock()
	}
	return &Replayer{limiter: lim, clock: vc, opts: opts}
}

// Load reads traffic records from a JSON array.
func (r *Replayer) Load(rd io.Reader) error {
	records, err := recorder.LoadJSON(rd)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords replaces the loaded records with a copy of records.
func (r *Replayer) LoadRecords(records []recorder.TrafficRecord) {
	r.records = slices.Clone(records)
}

// Run replays the loaded records in timestamp order, calling cb (if non-nil)
// with every decision. The virtual clock jumps to the first record's time if
// it is behind, then advances by the gap between consecutive records.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, ErrNoRecords
	}

	sorted := slices.Clone(r.records)
	slices.SortStableFunc(sorted, func(a, b recorder.TrafficRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var selected []recorder.TrafficRecord
	for _, rec := range sorted {
		if r.opts.Filter.Match(rec) {
			selected = append(selected, rec)
		}
	}

	summary := &Summary{
		TotalRecords: len(sorted),
		Filtered:     len(selected),
		PerKey:       make(map[string]KeySummary),
	}
	if len(selected) == 0 {
		return summary, nil
	}

	wallStart := time.Now()
	if first := selected[0].Timestamp; first.After(r.clock.Now()) {
		r.clock.Set(first)
	}

	for i, rec := range selected {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if i > 0 {
			if gap := rec.Timestamp.Sub(selected[i-1].Timestamp); gap > 0 {
				if err := r.pause(ctx, gap); err != nil {
					return summary, err
				}
				r.clock.Advance(gap)
			}
		}

		allowed := r.limiter.Check(rec.Key)
		summary.add(rec.Key, allowed)

		if cb != nil {
			cb(Result{Record: rec, Allowed: allowed, Time: r.clock.Now()})
		}
	}

	summary.Duration = selected[len(selected)-1].Timestamp.Sub(selected[0].Timestamp)
	summary.WallDuration = time.Since(wallStart)
	return summary, nil
}

// pause waits for gap scaled by the replay speed. Pauses under a
// millisecond are skipped.
func (r *Replayer) pause(ctx context.Context, gap time.Duration) error {
	if r.opts.Speed == 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.opts.Speed)
	if scaled < time.Millisecond {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.opts.Pacer.After(scaled):
		return nil
	}
}
