package client

import (
	"context"
	"sync"
	"time"
)

// stepClock advances only when slept on, and by Tick on every Now call.
// After fires immediately, so loops under test run synchronously.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	Tick   time.Duration
	sleeps []time.Duration
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{now: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Tick)
	return t
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *stepClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeElement struct{ sel string }

func (e fakeElement) Selector() string { return e.sel }

// fakeBrowser records calls and answers lookups from scripted functions.
type fakeBrowser struct {
	url         string
	navigations []string
	clicks      []string
	refreshes   int
	closed      bool

	cookies   []Cookie
	injected  []Cookie
	urlScript func() string
	find      func(selector string) (Element, error)
	text      func() string
}

func (b *fakeBrowser) Navigate(url string) error {
	b.url = url
	b.navigations = append(b.navigations, url)
	return nil
}

func (b *fakeBrowser) CurrentURL() (string, error) {
	if b.urlScript != nil {
		return b.urlScript(), nil
	}
	return b.url, nil
}

func (b *fakeBrowser) FindAndWaitVisible(selector string, _ time.Duration) (Element, error) {
	if b.find != nil {
		return b.find(selector)
	}
	return fakeElement{sel: selector}, nil
}

func (b *fakeBrowser) Click(el Element) error {
	b.clicks = append(b.clicks, el.Selector())
	return nil
}

func (b *fakeBrowser) Attribute(_ Element, name string) (string, error) {
	if name == "textContent" && b.text != nil {
		return b.text(), nil
	}
	return "", nil
}

func (b *fakeBrowser) Cookies() ([]Cookie, error) {
	return b.cookies, nil
}

func (b *fakeBrowser) SetCookies(cookies []Cookie) error {
	b.injected = append(b.injected, cookies...)
	return nil
}

func (b *fakeBrowser) Refresh() error {
	b.refreshes++
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

// memStore is an in-memory SessionStore.
type memStore struct {
	sessions map[string][]Cookie
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string][]Cookie{}}
}

func (m *memStore) Load(_ context.Context, key string) ([]Cookie, error) {
	c, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

func (m *memStore) Save(_ context.Context, key string, cookies []Cookie) error {
	m.saves++
	m.sessions[key] = cookies
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.sessions, key)
	return nil
}

func expiring(name string, exp int64) Cookie {
	return Cookie{Name: name, Value: name + "-v", Domain: ".jd.com", Path: "/", Expiry: &exp}
}
