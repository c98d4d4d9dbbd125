package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SessionState tracks where the SessionManager is in its lifecycle.
type SessionState int

const (
	NoSession SessionState = iota
	AwaitingLogin
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case AwaitingLogin:
		return "awaiting-login"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Session is the authenticated cookie set for one store key.
type Session struct {
	Key           string
	Cookies       []Cookie
	Authenticated bool
}

// SessionStore persists cookie sets under an explicit key that identifies
// the site configuration they belong to.
type SessionStore interface {
	// Load returns an error wrapping ErrSessionNotFound when key has no blob.
	Load(ctx context.Context, key string) ([]Cookie, error)
	Save(ctx context.Context, key string, cookies []Cookie) error
	Delete(ctx context.Context, key string) error
}

// SiteURLs are the three addresses the login flow depends on.
type SiteURLs struct {
	// BaseURL is loaded before stored cookies are injected.
	BaseURL string
	// LoginURL is where an interactive login starts.
	LoginURL string
	// VerifyURL is contained in the current URL once the user is logged in.
	VerifyURL string
}

// SessionManager establishes an authenticated browser session, either from
// stored cookies or by waiting for the operator to log in.
type SessionManager struct {
	browser Browser
	store   SessionStore
	key     string
	site    SiteURLs
	clock   Clock
	log     zerolog.Logger

	// LoginPoll governs the wait for an interactive login.
	// Default: every 5s for at most 300s.
	LoginPoll PollPolicy

	state SessionState
}

func NewSessionManager(browser Browser, store SessionStore, key string, site SiteURLs, clock Clock, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		browser:   browser,
		store:     store,
		key:       key,
		site:      site,
		clock:     clock,
		log:       logger.With().Str("session_key", key).Logger(),
		LoginPoll: PollPolicy{Interval: 5 * time.Second, Timeout: 300 * time.Second},
		state:     NoSession,
	}
}

// State reports the current lifecycle state.
func (m *SessionManager) State() SessionState {
	return m.state
}

// RestoreOrLogin injects stored cookies when a non-empty set exists, and
// otherwise falls back to Login. A restored session is trusted without a
// round trip.
func (m *SessionManager) RestoreOrLogin(ctx context.Context) (*Session, error) {
	m.log.Info().Msg("loading stored cookies")
	cookies, err := m.store.Load(ctx, m.key)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return m.Login(ctx)
	case err != nil:
		return nil, fmt.Errorf("failed to load session %q: %w", m.key, err)
	case len(cookies) == 0:
		return m.Login(ctx)
	}

	cookies = StripExpiry(cookies)
	if err := m.browser.Navigate(m.site.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", m.site.BaseURL, err)
	}
	if err := m.browser.SetCookies(cookies); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}
	if err := m.browser.Refresh(); err != nil {
		return nil, fmt.Errorf("failed to reload after cookie injection: %w", err)
	}

	m.state = Authenticated
	m.log.Info().Int("cookies", len(cookies)).Msg("session restored from store")
	return &Session{Key: m.key, Cookies: cookies, Authenticated: true}, nil
}

// Login opens the login page and waits for the operator to finish logging in.
// It fails with ErrLoginTimeout once LoginPoll.Timeout has passed.
func (m *SessionManager) Login(ctx context.Context) (*Session, error) {
	m.log.Info().Str("login_url", m.site.LoginURL).Msg("starting manual login")
	if m.state != Authenticated {
		if err := m.browser.Navigate(m.site.LoginURL); err != nil {
			return nil, fmt.Errorf("failed to open login page: %w", err)
		}
		m.state = AwaitingLogin
	}

	var waited time.Duration
	err := Poll(ctx, m.clock, m.LoginPoll, func() (bool, error) {
		waited += m.LoginPoll.Interval
		m.log.Info().Dur("waited", waited).Msg("waiting for login")
		return m.VerifyLogin()
	})
	if errors.Is(err, ErrPollTimeout) {
		return nil, fmt.Errorf("%w after %s", ErrLoginTimeout, m.LoginPoll.Timeout)
	}
	if err != nil {
		return nil, err
	}

	m.state = Authenticated
	m.log.Info().Msg("login succeeded")

	cookies, err := m.persist(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{Key: m.key, Cookies: cookies, Authenticated: true}, nil
}

// VerifyLogin reports whether the browser has left the login page for a URL
// under VerifyURL.
func (m *SessionManager) VerifyLogin() (bool, error) {
	current, err := m.browser.CurrentURL()
	if err != nil {
		return false, fmt.Errorf("failed to read current url: %w", err)
	}
	return strings.Contains(current, m.site.VerifyURL) && current != m.site.LoginURL, nil
}

// Close persists the browser's cookies, shuts the browser down and resets
// the state. The browser is closed even if persisting fails.
func (m *SessionManager) Close(ctx context.Context) error {
	_, saveErr := m.persist(ctx)
	closeErr := m.browser.Close()
	m.state = NoSession
	if saveErr != nil {
		return saveErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close browser: %w", closeErr)
	}
	return nil
}

// persist captures cookies from the browser, drops their expiry and writes
// them to the store.
func (m *SessionManager) persist(ctx context.Context) ([]Cookie, error) {
	cookies, err := m.browser.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	cookies = StripExpiry(cookies)
	if err := m.store.Save(ctx, m.key, cookies); err != nil {
		return nil, fmt.Errorf("failed to save session %q: %w", m.key, err)
	}
	m.log.Debug().Int("cookies", len(cookies)).Msg("session saved")
	return cookies, nil
}
