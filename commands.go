package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"flashbuy-bot/client"
)

func run(c *cli.Context) error {
	ctx := appContext(c)
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pm, err := newProxyManager(cfg)
	if err != nil {
		return err
	}
	fp, err := newFingerprint(cfg)
	if err != nil {
		return err
	}
	proxyURL := pm.GetSticky()
	userAgent := fp.GetRandomUserAgent()

	hc, err := newHTTPClient(cfg, proxyURL, userAgent)
	if err != nil {
		return err
	}
	sessions, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	agent, err := newBrowser(ctx, cfg, hc, fp, proxyURL, userAgent)
	if err != nil {
		return err
	}

	clock := client.RealClock()
	site := siteURLs(cfg)

	sm := client.NewSessionManager(agent, sessions, cfg.SessionKey(), site, clock, componentLogger("session"))
	sm.LoginPoll = client.PollPolicy{Interval: cfg.Login.Interval, Timeout: cfg.Login.Timeout}

	scheduler := client.NewScheduler(clock, componentLogger("scheduler"))
	scheduler.PollInterval = cfg.Schedule.PollInterval
	scheduler.SpinDuration = cfg.Schedule.Spin

	ac := attemptConfig(cfg)
	loop := client.NewAttemptLoop(agent, ac, clock, newRand(), componentLogger("attempt"))
	sync := client.NewClockSynchronizer(newTimeSource(cfg, hc), clock, componentLogger("clock"))
	sale := client.NewFlashSale(cfg.BuyTime, ac, agent, sync, scheduler, loop, clock, componentLogger("flashsale"))

	log.Info().
		Str("run_id", sale.RunID).
		Str("site", cfg.Site.Name).
		Str("item", ac.ItemURL).
		Str("buy_time", cfg.BuyTime).
		Str("agent", cfg.Browser.Agent).
		Str("proxy", pm.GetCurrentProxyInfo()).
		Msg("starting")

	runErr := client.NewSpider(cfg.Site.Name, site, agent, sm, componentLogger("spider")).Start(ctx, sale)

	report := sale.Report()
	report.Site = cfg.Site.Name
	report.Agent = cfg.Browser.Agent
	report.ProxyInfo = pm.GetCurrentProxyInfo()
	if runErr != nil && report.Err == "" {
		report.Err = runErr.Error()
	}
	client.PrintRunReport(report)
	if cfg.Report.LogFile != "" {
		if err := client.WriteStructuredLog(report, cfg.Report.LogFile); err != nil {
			log.Error().Err(err).Str("file", cfg.Report.LogFile).Msg("failed to write run log")
		}
	}
	return runErr
}

func offset(c *cli.Context) error {
	ctx := appContext(c)
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	pm, err := newProxyManager(cfg)
	if err != nil {
		return err
	}
	hc, err := newHTTPClient(cfg, pm.GetSticky(), "")
	if err != nil {
		return err
	}
	defer hc.CloseIdleConnections()

	sync := client.NewClockSynchronizer(newTimeSource(cfg, hc), client.RealClock(), componentLogger("clock"))
	off, err := sync.MeasureOffset(ctx)
	if err != nil {
		return err
	}
	sample := sync.LastSample()
	fmt.Printf("source:  %s\n", cfg.Clock.Source)
	fmt.Printf("local:   %d\n", sample.Local)
	fmt.Printf("remote:  %d\n", sample.Remote)
	fmt.Printf("offset:  %dms (local ahead when positive)\n", int64(off))
	fmt.Printf("rtt:     %s\n", sample.RTT)
	return nil
}

func resolve(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	timeOfDay := cfg.BuyTime
	if c.NArg() > 0 {
		timeOfDay = c.Args().First()
	}
	if timeOfDay == "" {
		return errors.New("no buy time given")
	}
	target, err := client.ResolveTarget(timeOfDay, client.RealClock().Now())
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%d)\n", timeOfDay, target.Time().Format("2006-01-02 15:04:05.000 MST"), int64(target))
	return nil
}

func sessionShow(c *cli.Context) error {
	ctx := appContext(c)
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	sessions, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	key := cfg.SessionKey()
	cookies, err := sessions.Load(ctx, key)
	if errors.Is(err, client.ErrSessionNotFound) {
		log.Info().Str("session_key", key).Msg("no stored session")
		return nil
	}
	if err != nil {
		return err
	}
	client.DebugCookies(log.Logger, key, cookies)
	return nil
}

func sessionClear(c *cli.Context) error {
	ctx := appContext(c)
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	sessions, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := sessions.Delete(ctx, cfg.SessionKey()); err != nil {
		return err
	}
	log.Info().Str("session_key", cfg.SessionKey()).Msg("session cleared")
	return nil
}
