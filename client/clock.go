package client

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the part of clockwork.Clock the scheduler, session and attempt
// loops depend on. In production use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock returns the wall clock.
func RealClock() Clock {
	return clockwork.NewRealClock()
}

// sleep blocks for d on c, returning early with ctx.Err() if ctx is done.
func sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-c.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
