package client

import (
	"context"
	"time"
)

// PollPolicy bounds a polling wait: check every Interval until the
// cumulative wait reaches Timeout.
type PollPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poll sleeps Interval, then evaluates cond, repeating until cond reports
// true. Once the accumulated sleep reaches Timeout without success it
// returns ErrPollTimeout. Errors from cond are returned as-is.
//
// The sleep comes before each check, so a condition that is already true is
// observed after one Interval.
func Poll(ctx context.Context, clock Clock, p PollPolicy, cond func() (bool, error)) error {
	var waited time.Duration
	for {
		if err := sleep(ctx, clock, p.Interval); err != nil {
			return err
		}
		waited += p.Interval

		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if waited >= p.Timeout {
			return ErrPollTimeout
		}
	}
}
