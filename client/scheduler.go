package client

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Scheduler waits for a target instant on the remote clock's timeline.
type Scheduler struct {
	// PollInterval is the sleep between checks of the corrected clock.
	// Default: 500ms
	PollInterval time.Duration

	// ProgressEvery emits a "remaining" log line every N iterations.
	// Default: 100
	ProgressEvery int

	// SpinDuration switches from sleeping to busy-checking the clock once
	// the remaining time drops below it. Zero disables spinning.
	SpinDuration time.Duration

	clock Clock
	log   zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(clock Clock, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		PollInterval:  500 * time.Millisecond,
		ProgressEvery: 100,
		clock:         clock,
		log:           logger,
	}
}

// correctedNow is the local clock moved onto the remote timeline.
func (s *Scheduler) correctedNow(offset ClockOffset) int64 {
	return s.clock.Now().UnixMilli() - int64(offset)
}

// Await blocks until localNow - offset >= target and returns the drift
// (corrected wake time - target). It has no upper bound on the wait and only
// returns an error when ctx is cancelled.
func (s *Scheduler) Await(ctx context.Context, target TargetInstant, offset ClockOffset) (time.Duration, error) {
	s.log.Info().
		Time("target", target.Time()).
		Int64("offset_ms", int64(offset)).
		Dur("poll_interval", s.PollInterval).
		Msg("waiting for target time")

	for iteration := 1; ; iteration++ {
		now := s.correctedNow(offset)
		remaining := int64(target) - now
		if remaining <= 0 {
			drift := time.Duration(-remaining) * time.Millisecond
			s.log.Info().Dur("drift", drift).Msg("target time reached, starting")
			return drift, nil
		}

		if s.ProgressEvery > 0 && iteration%s.ProgressEvery == 0 {
			s.log.Info().
				Float64("remaining_s", float64(remaining)/1000).
				Msg("still waiting")
		}

		if s.SpinDuration > 0 && time.Duration(remaining)*time.Millisecond <= s.SpinDuration {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			continue
		}
		if err := sleep(ctx, s.clock, s.PollInterval); err != nil {
			return 0, err
		}
	}
}

// LogDrift prints the drift in a readable format
func LogDrift(drift time.Duration) {
	msg := fmt.Sprintf("⏱️  Precision Wake: Drift = %d ms", drift.Milliseconds())

	if drift > 100*time.Millisecond {
		color.Red(msg)
	} else {
		color.Green(msg)
	}
}
