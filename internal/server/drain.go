package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/admit/internal/log"
)

// DrainScheduler drains a leaky bucket on a fixed interval, so queued work
// keeps flowing to handlers even when no new requests arrive.
//
// cron schedules with one-second resolution; shorter intervals run every
// second.
type DrainScheduler struct {
	cron     *cron.Cron
	interval time.Duration
}

// NewDrainScheduler schedules drain every interval. Call Start to begin.
func NewDrainScheduler(interval time.Duration, drain func() int) (*DrainScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("drain interval must be positive, got %s", interval)
	}

	c := cron.New()
	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, func() {
		if n := drain(); n > 0 {
			log.Logger().Debug("scheduled drain", zap.Int("dispatched", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduling %q: %w", spec, err)
	}

	return &DrainScheduler{cron: c, interval: interval}, nil
}

func (d *DrainScheduler) Start() {
	d.cron.Start()
	log.Logger().Info("drain scheduler started", zap.Duration("interval", d.interval))
}

// Stop stops scheduling and waits for a running drain to finish or ctx to
// expire.
func (d *DrainScheduler) Stop(ctx context.Context) error {
	done := d.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs every scheduled drain once, synchronously.
func (d *DrainScheduler) RunNow() {
	for _, entry := range d.cron.Entries() {
		entry.Job.Run()
	}
}
