package client

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_WakesOnRemoteTimeline(t *testing.T) {
	// local clock runs 300ms ahead of the remote one
	clock := newStepClock(time.UnixMilli(1700000000300))
	s := NewScheduler(clock, zerolog.Nop())
	s.PollInterval = 500 * time.Millisecond

	target := TargetInstant(1700000002000)
	drift, err := s.Await(context.Background(), target, ClockOffset(300))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), drift)
	assert.Len(t, clock.Sleeps(), 4)

	woke := clock.Now().UnixMilli()
	assert.GreaterOrEqual(t, woke-300, int64(target))
	assert.Less(t, woke-s.PollInterval.Milliseconds(), int64(target)+300)
}

func TestScheduler_OvershootBoundedByInterval(t *testing.T) {
	for _, interval := range []time.Duration{7 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond} {
		for _, offset := range []ClockOffset{-5000, 0, 300, 12345} {
			clock := newStepClock(time.UnixMilli(1700000000000))
			s := NewScheduler(clock, zerolog.Nop())
			s.PollInterval = interval

			target := TargetInstant(1700000000000 - int64(offset) + 2500)
			drift, err := s.Await(context.Background(), target, offset)
			require.NoError(t, err)

			woke := clock.Now().UnixMilli()
			assert.GreaterOrEqual(t, woke-int64(offset), int64(target))
			assert.Less(t, woke-interval.Milliseconds(), int64(target)+int64(offset))
			assert.Less(t, drift, interval)
		}
	}
}

func TestScheduler_AlreadyPast(t *testing.T) {
	clock := newStepClock(time.UnixMilli(1700000005000))
	s := NewScheduler(clock, zerolog.Nop())

	drift, err := s.Await(context.Background(), TargetInstant(1700000004000), 0)
	require.NoError(t, err)
	assert.Equal(t, time.Second, drift)
	assert.Empty(t, clock.Sleeps())
}

func TestScheduler_ProgressLines(t *testing.T) {
	var buf bytes.Buffer
	clock := newStepClock(time.UnixMilli(0))
	s := NewScheduler(clock, zerolog.New(&buf))
	s.PollInterval = 100 * time.Millisecond
	s.ProgressEvery = 2

	_, err := s.Await(context.Background(), TargetInstant(400), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(buf.String(), "still waiting"))
}

func TestScheduler_Spin(t *testing.T) {
	clock := newStepClock(time.UnixMilli(0))
	clock.Tick = time.Millisecond
	s := NewScheduler(clock, zerolog.Nop())
	s.PollInterval = 500 * time.Millisecond
	s.SpinDuration = time.Second

	drift, err := s.Await(context.Background(), TargetInstant(2000), 0)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), drift)
	// sleeps stop once less than a second remains
	assert.Len(t, clock.Sleeps(), 2)
}

func TestScheduler_Cancelled(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(0))
	s := NewScheduler(clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Await(ctx, TargetInstant(3_600_000), 0)
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after cancel")
	}
}

func TestScheduler_FakeClockAdvance(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	s := NewScheduler(clock, zerolog.Nop())
	s.PollInterval = 500 * time.Millisecond

	done := make(chan time.Duration, 1)
	go func() {
		drift, err := s.Await(context.Background(), TargetInstant(2000), 0)
		assert.NoError(t, err)
		done <- drift
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(500 * time.Millisecond)
	}

	select {
	case drift := <-done:
		assert.Equal(t, time.Duration(0), drift)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not wake")
	}
}
