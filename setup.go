package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"flashbuy-bot/browser"
	"flashbuy-bot/client"
	"flashbuy-bot/config"
	"flashbuy-bot/store"
)

// loadSettings layers config file, .env, environment and flags.
func loadSettings(c *cli.Context) (*config.Config, error) {
	if err := config.LoadDotEnv(c.GlobalString("env")); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.Load(afero.NewOsFs(), c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)

	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("item"); v != "" {
		cfg.Item = v
	}
	if v := c.String("at"); v != "" {
		cfg.BuyTime = v
	}
	if v := c.Duration("poll"); v > 0 {
		cfg.Schedule.PollInterval = v
	}
	if v := c.Duration("sleep"); v > 0 {
		cfg.Attempt.JitterUnit = v
	}
	if v := c.String("agent"); v != "" {
		cfg.Browser.Agent = v
	}
	if c.Bool("headless") {
		cfg.Browser.Headless = true
	}
}

func siteURLs(cfg *config.Config) client.SiteURLs {
	return client.SiteURLs{
		BaseURL:   cfg.Site.BaseURL,
		LoginURL:  cfg.Site.LoginURL,
		VerifyURL: cfg.Site.VerifyURL,
	}
}

func attemptConfig(cfg *config.Config) client.AttemptConfig {
	ac := client.DefaultAttemptConfig(cfg.ItemURL())
	ac.TriggerSelector = cfg.Attempt.TriggerSelector
	ac.ConfirmSelector = cfg.Attempt.ConfirmSelector
	if len(cfg.Attempt.NotOpenLabels) > 0 {
		ac.NotOpenLabels = cfg.Attempt.NotOpenLabels
	}
	ac.TriggerWait = cfg.Attempt.TriggerWait
	ac.ConfirmWait = cfg.Attempt.ConfirmWait
	ac.MaxAttempts = cfg.Attempt.MaxAttempts
	ac.SettleDuration = cfg.Attempt.Settle
	ac.JitterUnit = cfg.Attempt.JitterUnit
	return ac
}

// newProxyManager loads the configured proxies. The sticky proxy is shared by
// the clock sample and the browser so both see the same network path.
func newProxyManager(cfg *config.Config) (*client.ProxyManager, error) {
	pm := client.NewProxyManager()
	if cfg.Browser.ProxyFile != "" {
		if err := pm.LoadProxies(cfg.Browser.ProxyFile); err != nil {
			return nil, fmt.Errorf("failed to load proxies: %w", err)
		}
	}
	if cfg.Browser.Proxy != "" {
		if err := pm.Add(cfg.Browser.Proxy); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

func newFingerprint(cfg *config.Config) (*client.FingerprintManager, error) {
	fp := client.NewFingerprintManager()
	if cfg.Browser.UserAgentsFile != "" {
		if err := fp.LoadUserAgents(cfg.Browser.UserAgentsFile); err != nil {
			return nil, fmt.Errorf("failed to load user agents: %w", err)
		}
	}
	return fp, nil
}

func newHTTPClient(cfg *config.Config, proxyURL, userAgent string) (*client.LowLatencyClient, error) {
	return client.NewLowLatencyClient(client.ClientOptions{
		ProxyURL:               proxyURL,
		UserAgent:              userAgent,
		ForceStandardTransport: cfg.Browser.StandardTLS,
		Safety:                 client.NewSafetyManager(),
	})
}

func newTimeSource(cfg *config.Config, hc *client.LowLatencyClient) client.TimeSource {
	if cfg.Clock.Source == "ntp" {
		return client.NewNTPTimeSource(cfg.Clock.NTPServer)
	}
	return client.NewHTTPTimeSource(hc, cfg.Clock.Endpoint, cfg.Clock.Field)
}

// openStore builds the session store. The returned closer releases the
// backend and is never nil.
func openStore(ctx context.Context, cfg *config.Config) (client.SessionStore, io.Closer, error) {
	var blobs store.Blobs
	var closer io.Closer = nopCloser{}

	switch cfg.Session.Store {
	case "sqlite":
		db, err := store.OpenSQLite(ctx, cfg.Session.DSN)
		if err != nil {
			return nil, nil, err
		}
		blobs, closer = db, db
	default:
		blobs = store.NewFileStore(afero.NewOsFs(), cfg.Session.Dir)
	}

	if cfg.Session.Encrypt {
		dir := cfg.Session.Dir
		if dir == "" {
			dir = "."
		}
		key, err := store.NewKeySource(afero.NewOsFs(), filepath.Clean(dir)).Key()
		if err != nil {
			closer.Close()
			return nil, nil, fmt.Errorf("failed to get session key: %w", err)
		}
		sealed, err := store.NewSealedStore(blobs, key)
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		blobs = sealed
	}
	return store.NewSessions(blobs), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// chromeProxy drops credentials, which --proxy-server does not accept.
func chromeProxy(proxyURL string) string {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return proxyURL
	}
	return u.Scheme + "://" + u.Host
}

func newBrowser(ctx context.Context, cfg *config.Config, hc *client.LowLatencyClient, fp *client.FingerprintManager, proxyURL, userAgent string) (client.Browser, error) {
	if cfg.Browser.Agent == "http" {
		return browser.NewHTTPAgent(ctx, hc, fp, client.RealClock()), nil
	}
	return browser.NewChrome(ctx, browser.ChromeOptions{
		Headless:    cfg.Browser.Headless,
		ExecPath:    cfg.Browser.ExecPath,
		UserDataDir: cfg.Browser.UserDataDir,
		UserAgent:   userAgent,
		ProxyServer: chromeProxy(proxyURL),
	})
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func componentLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
