// Package throttle slows down and finally rejects event submissions when too
// many were stored within a trailing window.
package throttle

import (
	"context"
	"fmt"
	"time"

	"eventcal/internal/apperr"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
)

// Counter reports how many events were created since a point in time.
type Counter interface {
	CountEventsCreatedSince(ctx context.Context, since time.Time) (int, error)
}

type Throttle struct {
	counter   Counter
	window    time.Duration
	slowAfter int
	max       int
	delay     time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(counter Counter, cfg config.ThrottleConfig) *Throttle {
	return &Throttle{
		counter:   counter,
		window:    cfg.Window,
		slowAfter: cfg.SlowAfter,
		max:       cfg.Max,
		delay:     cfg.Delay,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Check runs before an insertion. With slowAfter or more recent events it
// waits for the configured delay; with max or more it returns a RateLimited
// error whose RetryAfter is the window.
func (t *Throttle) Check(ctx context.Context) error {
	n, err := t.counter.CountEventsCreatedSince(ctx, t.now().Add(-t.window))
	if err != nil {
		return fmt.Errorf("count recent events: %w", err)
	}

	if t.max > 0 && n >= t.max {
		appLog.Warn("event submissions rejected", "recent", n, "max", t.max, "window", t.window.String())
		return apperr.Limited(t.window)
	}
	if t.slowAfter > 0 && n >= t.slowAfter && t.delay > 0 {
		appLog.Debug("slowing down event submission", "recent", n, "delay", t.delay.String())
		return t.sleep(ctx, t.delay)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
