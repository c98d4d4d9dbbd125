package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AttemptState is the position of the attempt loop's state machine.
type AttemptState int

const (
	Waiting AttemptState = iota
	Attempting
	Submitted
	Exhausted
)

func (s AttemptState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Attempting:
		return "attempting"
	case Submitted:
		return "submitted"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("AttemptState(%d)", int(s))
}

// Terminal reports whether s ends the loop.
func (s AttemptState) Terminal() bool {
	return s == Submitted || s == Exhausted
}

// DefaultNotOpenLabels are trigger texts shown before the sale opens.
var DefaultNotOpenLabels = []string{"等待抢购", "开始预购", "等待预购", "等待预约", "开始预约"}

// AttemptConfig describes the item page and the retry budget.
type AttemptConfig struct {
	ItemURL string
	// TriggerSelector locates the buy button whose text signals readiness.
	TriggerSelector string
	// ConfirmSelector locates the checkout button that appears after a
	// successful trigger click.
	ConfirmSelector string
	NotOpenLabels   []string

	TriggerWait time.Duration
	ConfirmWait time.Duration

	MaxAttempts    int
	SettleDuration time.Duration
	// JitterUnit scales the 1..5 random pause taken between readiness polls
	// before the first attempt.
	JitterUnit time.Duration
}

// DefaultAttemptConfig returns the selectors and budget for the item page.
func DefaultAttemptConfig(itemURL string) AttemptConfig {
	return AttemptConfig{
		ItemURL:         itemURL,
		TriggerSelector: "#btn-reservation",
		ConfirmSelector: ".checkout-submit",
		NotOpenLabels:   DefaultNotOpenLabels,
		TriggerWait:     10 * time.Second,
		ConfirmWait:     10 * time.Second,
		MaxAttempts:     30,
		SettleDuration:  30 * time.Second,
		JitterUnit:      100 * time.Millisecond,
	}
}

// AttemptLog represents a single purchase attempt row in the run report
type AttemptLog struct {
	Attempt int           `json:"attempt"`
	At      time.Time     `json:"at"`
	Result  string        `json:"result"`
	Detail  string        `json:"detail"`
	Elapsed time.Duration `json:"elapsed"`
}

// AttemptResult is the terminal outcome of one loop run.
type AttemptResult struct {
	State    AttemptState
	Attempts int
	Polls    int
	Log      []AttemptLog
}

// Err returns ErrAttemptsExhausted for an exhausted run and nil otherwise.
func (r AttemptResult) Err() error {
	if r.State == Exhausted {
		return fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, r.Attempts)
	}
	return nil
}

// AttemptLoop reloads the item page until the sale opens, then pushes the
// trigger and confirmation clicks through, retrying confirmation timeouts.
type AttemptLoop struct {
	browser Browser
	cfg     AttemptConfig
	clock   Clock
	rand    *rand.Rand
	log     zerolog.Logger

	state    AttemptState
	attempts int
}

func NewAttemptLoop(browser Browser, cfg AttemptConfig, clock Clock, rng *rand.Rand, logger zerolog.Logger) *AttemptLoop {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	return &AttemptLoop{
		browser: browser,
		cfg:     cfg,
		clock:   clock,
		rand:    rng,
		log:     logger,
		state:   Waiting,
	}
}

// State returns the current state.
func (l *AttemptLoop) State() AttemptState {
	return l.state
}

// Attempts returns how many trigger clicks have been made.
func (l *AttemptLoop) Attempts() int {
	return l.attempts
}

func (l *AttemptLoop) notOpen(text string) bool {
	text = strings.TrimSpace(text)
	for _, label := range l.cfg.NotOpenLabels {
		if text == label {
			return true
		}
	}
	return false
}

// Run drives the state machine to Submitted or Exhausted. Any browser error
// other than a confirmation timeout is returned as fatal.
func (l *AttemptLoop) Run(ctx context.Context) (AttemptResult, error) {
	res := AttemptResult{}
	for !l.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return l.result(res), err
		}
		res.Polls++

		if err := l.browser.Navigate(l.cfg.ItemURL); err != nil {
			return l.result(res), fmt.Errorf("failed to load item page: %w", err)
		}
		trigger, err := l.browser.FindAndWaitVisible(l.cfg.TriggerSelector, l.cfg.TriggerWait)
		if err != nil {
			return l.result(res), fmt.Errorf("trigger element %s: %w", l.cfg.TriggerSelector, err)
		}
		text, err := l.browser.Attribute(trigger, "textContent")
		if err != nil {
			return l.result(res), fmt.Errorf("failed to read trigger text: %w", err)
		}

		if l.notOpen(text) {
			if l.state == Waiting {
				l.log.Debug().Str("label", strings.TrimSpace(text)).Msg("sale not open yet")
			}
		} else {
			l.state = Attempting
			l.attempts++
			entry, err := l.attempt(ctx, trigger)
			res.Log = append(res.Log, entry)
			if err != nil {
				return l.result(res), err
			}
		}

		if l.attempts == 0 && !l.state.Terminal() {
			jitter := time.Duration(l.rand.Intn(5)+1) * l.cfg.JitterUnit
			if err := sleep(ctx, l.clock, jitter); err != nil {
				return l.result(res), err
			}
		}
	}
	return l.result(res), nil
}

// attempt performs one trigger + confirmation click pair and advances the
// state. Only ErrElementTimeout on the confirmation wait is absorbed.
func (l *AttemptLoop) attempt(ctx context.Context, trigger Element) (AttemptLog, error) {
	started := l.clock.Now()
	entry := AttemptLog{Attempt: l.attempts, At: started}
	logger := l.log.With().Int("attempt", l.attempts).Logger()
	logger.Info().Msg("sale is open, clicking trigger")

	if err := l.browser.Click(trigger); err != nil {
		entry.Result, entry.Detail = "error", err.Error()
		return entry, fmt.Errorf("failed to click trigger: %w", err)
	}

	confirm, err := l.browser.FindAndWaitVisible(l.cfg.ConfirmSelector, l.cfg.ConfirmWait)
	if errors.Is(err, ErrElementTimeout) {
		entry.Elapsed = l.clock.Now().Sub(started)
		entry.Result, entry.Detail = "missed", "confirmation did not appear"
		if l.attempts >= l.cfg.MaxAttempts {
			l.state = Exhausted
			logger.Warn().Int("max_attempts", l.cfg.MaxAttempts).Msg("attempt budget exhausted")
		} else {
			logger.Warn().Msg("confirmation did not appear, retrying")
		}
		return entry, nil
	}
	if err != nil {
		entry.Result, entry.Detail = "error", err.Error()
		return entry, fmt.Errorf("confirmation element %s: %w", l.cfg.ConfirmSelector, err)
	}

	if err := l.browser.Click(confirm); err != nil {
		entry.Result, entry.Detail = "error", err.Error()
		return entry, fmt.Errorf("failed to click confirmation: %w", err)
	}
	entry.Elapsed = l.clock.Now().Sub(started)
	entry.Result, entry.Detail = "submitted", "checkout confirmation clicked"
	logger.Info().Dur("settle", l.cfg.SettleDuration).Msg("order submitted, settling")

	if err := sleep(ctx, l.clock, l.cfg.SettleDuration); err != nil {
		return entry, err
	}
	l.state = Submitted
	return entry, nil
}

func (l *AttemptLoop) result(res AttemptResult) AttemptResult {
	res.State = l.state
	res.Attempts = l.attempts
	return res
}
