package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsAfterChecks(t *testing.T) {
	clock := newStepClock(time.Unix(0, 0))
	checks := 0

	err := Poll(context.Background(), clock, PollPolicy{Interval: 5 * time.Second, Timeout: 300 * time.Second}, func() (bool, error) {
		checks++
		return checks == 3, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, checks)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.Sleeps())
}

func TestPoll_Timeout(t *testing.T) {
	clock := newStepClock(time.Unix(0, 0))
	checks := 0

	err := Poll(context.Background(), clock, PollPolicy{Interval: 5 * time.Second, Timeout: 300 * time.Second}, func() (bool, error) {
		checks++
		return false, nil
	})

	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Equal(t, 60, checks)
}

func TestPoll_ConditionError(t *testing.T) {
	boom := errors.New("browser crashed")
	err := Poll(context.Background(), newStepClock(time.Unix(0, 0)), PollPolicy{Interval: time.Second, Timeout: time.Minute}, func() (bool, error) {
		return false, boom
	})
	assert.Equal(t, boom, err)
}

func TestPoll_SleepsBeforeFirstCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	checked := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		done <- Poll(context.Background(), clock, PollPolicy{Interval: time.Second, Timeout: time.Minute}, func() (bool, error) {
			checked <- struct{}{}
			return true, nil
		})
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	select {
	case <-checked:
		t.Fatal("condition evaluated before the first interval elapsed")
	default:
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return")
	}
}

func TestPoll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Poll(ctx, clockwork.NewFakeClock(), PollPolicy{Interval: time.Second, Timeout: time.Minute}, func() (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
