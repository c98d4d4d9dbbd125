package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Runner is the site-specific part of a run. It executes once the session
// is established and the base page is open.
type Runner interface {
	Run(ctx context.Context) error
}

// Spider owns the browser session around a Runner.
type Spider struct {
	Name    string
	site    SiteURLs
	browser Browser
	session *SessionManager
	log     zerolog.Logger
}

func NewSpider(name string, site SiteURLs, browser Browser, session *SessionManager, logger zerolog.Logger) *Spider {
	return &Spider{
		Name:    name,
		site:    site,
		browser: browser,
		session: session,
		log:     logger,
	}
}

// Start restores or establishes the session, opens the base page and runs r.
// The session is persisted and the browser closed whether r succeeds or not.
func (s *Spider) Start(ctx context.Context, r Runner) (err error) {
	defer func() {
		closeErr := s.session.Close(context.WithoutCancel(ctx))
		if closeErr == nil {
			return
		}
		if err == nil {
			err = closeErr
			return
		}
		s.log.Error().Err(closeErr).Msg("failed to close session")
	}()

	if _, err := s.session.RestoreOrLogin(ctx); err != nil {
		return err
	}
	if err := s.browser.Navigate(s.site.BaseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.site.BaseURL, err)
	}
	return r.Run(ctx)
}

// FlashSale waits for the sale instant on the remote clock, then runs the
// attempt loop against the item page.
type FlashSale struct {
	RunID     string
	TimeOfDay string

	browser   Browser
	sync      *ClockSynchronizer
	scheduler *Scheduler
	loop      *AttemptLoop
	cfg       AttemptConfig
	clock     Clock
	log       zerolog.Logger

	report RunReport
}

func NewFlashSale(timeOfDay string, cfg AttemptConfig, browser Browser, sync *ClockSynchronizer, scheduler *Scheduler, loop *AttemptLoop, clock Clock, logger zerolog.Logger) *FlashSale {
	runID := uuid.New().String()[:8]
	return &FlashSale{
		RunID:     runID,
		TimeOfDay: timeOfDay,
		browser:   browser,
		sync:      sync,
		scheduler: scheduler,
		loop:      loop,
		cfg:       cfg,
		clock:     clock,
		log:       logger.With().Str("run_id", runID).Logger(),
		report: RunReport{
			RunID:     runID,
			ItemURL:   cfg.ItemURL,
			TimeOfDay: timeOfDay,
		},
	}
}

// Report returns what the run has recorded so far.
func (f *FlashSale) Report() RunReport {
	return f.report
}

func (f *FlashSale) Run(ctx context.Context) error {
	err := f.run(ctx)
	if err != nil {
		f.report.Err = err.Error()
	}
	return err
}

func (f *FlashSale) run(ctx context.Context) error {
	if err := f.browser.Navigate(f.cfg.ItemURL); err != nil {
		return fmt.Errorf("failed to open item page: %w", err)
	}

	target, err := ResolveTarget(f.TimeOfDay, f.clock.Now())
	if err != nil {
		return err
	}
	f.report.TargetTime = target.Time()

	offset, err := f.sync.MeasureOffset(ctx)
	if err != nil {
		return err
	}
	f.report.Clock = f.sync.LastSample()

	f.log.Info().
		Time("target", target.Time()).
		Int64("local_ms", f.report.Clock.Local).
		Int64("remote_ms", f.report.Clock.Remote).
		Int64("offset_ms", int64(offset)).
		Msg("scheduled purchase")

	drift, err := f.scheduler.Await(ctx, target, offset)
	if err != nil {
		return err
	}
	f.report.FireTime = time.UnixMilli(int64(target)).Add(drift)
	f.report.Drift = drift
	LogDrift(drift)

	res, err := f.loop.Run(ctx)
	f.report.State = res.State
	f.report.Polls = res.Polls
	f.report.Attempts = res.Log
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		f.log.Warn().Int("attempts", res.Attempts).Msg("giving up for today")
		return err
	}
	f.log.Info().Int("attempts", res.Attempts).Msg("purchase submitted")
	return nil
}
