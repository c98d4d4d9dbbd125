package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashbuy-bot/client"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

const itemPage = `<html><body>
<div id="notice" style="display: none">hidden notice</div>
<input type="hidden" id="token-field" name="token" value="t0k">
<a id="btn-reservation" class="btn" href="/cart">
  立即抢购
</a>
<span id="flag" hidden>flag</span>
</body></html>`

const cartPage = `<html><body>
<form id="order" method="post" action="/submit">
  <input type="hidden" name="csrf" value="c5rf">
  <input type="text" name="qty" value="1">
  <input type="checkbox" name="insure" value="yes">
  <input type="checkbox" name="invoice" value="yes" checked>
  <select name="addr"><option value="home">Home</option><option value="work" selected>Work</option></select>
  <textarea name="note">leave at door</textarea>
  <button class="checkout-submit" type="submit" name="action" value="pay">提交订单</button>
</form>
</body></html>`

type shop struct {
	srv       *httptest.Server
	form      url.Values
	itemHits  atomic.Int32
	showAfter int32
}

func newShop(t *testing.T) *shop {
	t.Helper()
	s := &shop{}
	mux := http.NewServeMux()
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		s.itemHits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "thor", Value: "abc", Path: "/"})
		w.Write([]byte(itemPage))
	})
	mux.HandleFunc("/late", func(w http.ResponseWriter, r *http.Request) {
		n := s.itemHits.Add(1)
		if n > s.showAfter {
			w.Write([]byte(`<button id="late">go</button>`))
			return
		}
		w.Write([]byte(`<button id="late" style="visibility:hidden">go</button>`))
	})
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cartPage))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		s.form = r.PostForm
		w.Write([]byte(`<div class="done">ok</div>`))
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("pin")
		if err != nil {
			w.Write([]byte(`<p id="pin">anonymous</p>`))
			return
		}
		fmt.Fprintf(w, `<p id="pin">%s</p>`, c.Value)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newAgent(t *testing.T) (*HTTPAgent, *stepClock) {
	t.Helper()
	c, err := client.NewLowLatencyClient(client.ClientOptions{ForceStandardTransport: true, Timeout: 5 * time.Second})
	require.NoError(t, err)
	clock := &stepClock{now: time.Unix(0, 0)}
	return NewHTTPAgent(context.Background(), c, client.NewFingerprintManager(), clock), clock
}

func TestHTTPAgent_ClickThroughCheckout(t *testing.T) {
	s := newShop(t)
	a, _ := newAgent(t)

	require.NoError(t, a.Navigate(s.srv.URL+"/item"))

	trigger, err := a.FindAndWaitVisible("#btn-reservation", time.Second)
	require.NoError(t, err)
	text, err := a.Attribute(trigger, "textContent")
	require.NoError(t, err)
	assert.Contains(t, text, "立即抢购")

	require.NoError(t, a.Click(trigger))
	current, err := a.CurrentURL()
	require.NoError(t, err)
	assert.Equal(t, s.srv.URL+"/cart", current)

	confirm, err := a.FindAndWaitVisible(".checkout-submit", time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Click(confirm))

	require.NotNil(t, s.form)
	assert.Equal(t, "c5rf", s.form.Get("csrf"))
	assert.Equal(t, "1", s.form.Get("qty"))
	assert.Equal(t, "yes", s.form.Get("invoice"))
	assert.Empty(t, s.form.Get("insure"))
	assert.Equal(t, "work", s.form.Get("addr"))
	assert.Equal(t, "leave at door", s.form.Get("note"))
	assert.Equal(t, "pay", s.form.Get("action"))

	current, _ = a.CurrentURL()
	assert.Equal(t, s.srv.URL+"/submit", current)
}

func TestHTTPAgent_HiddenElementsTimeOut(t *testing.T) {
	s := newShop(t)
	a, clock := newAgent(t)
	require.NoError(t, a.Navigate(s.srv.URL+"/item"))

	for _, sel := range []string{"#notice", "#token-field", "#flag", "#absent"} {
		start := clock.Now()
		_, err := a.FindAndWaitVisible(sel, time.Second)
		assert.True(t, errors.Is(err, client.ErrElementTimeout), sel)
		assert.GreaterOrEqual(t, clock.Now().Sub(start), time.Second, sel)
	}
}

func TestHTTPAgent_RefetchesUntilVisible(t *testing.T) {
	s := newShop(t)
	s.showAfter = 3
	a, _ := newAgent(t)

	require.NoError(t, a.Navigate(s.srv.URL+"/late"))
	el, err := a.FindAndWaitVisible("#late", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "#late", el.Selector())
	assert.Equal(t, int32(4), s.itemHits.Load())
}

func TestHTTPAgent_Cookies(t *testing.T) {
	s := newShop(t)
	a, _ := newAgent(t)

	require.NoError(t, a.Navigate(s.srv.URL+"/item"))
	cookies, err := a.Cookies()
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "thor", cookies[0].Name)
	assert.Nil(t, cookies[0].Expiry)

	u, _ := url.Parse(s.srv.URL)
	exp := time.Now().Add(time.Hour).Unix()
	require.NoError(t, a.SetCookies([]client.Cookie{{Name: "pin", Value: "user1", Domain: u.Hostname(), Expiry: &exp}}))

	require.NoError(t, a.Navigate(s.srv.URL+"/whoami"))
	el, err := a.FindAndWaitVisible("#pin", time.Second)
	require.NoError(t, err)
	text, _ := a.Attribute(el, "textContent")
	assert.Equal(t, "user1", text)
}

func TestHTTPAgent_ClickRequiresLinkOrForm(t *testing.T) {
	s := newShop(t)
	a, _ := newAgent(t)
	require.NoError(t, a.Navigate(s.srv.URL+"/whoami"))

	el, err := a.FindAndWaitVisible("#pin", time.Second)
	require.NoError(t, err)
	assert.Error(t, a.Click(el))
}

func TestHTTPAgent_BeforeNavigation(t *testing.T) {
	a, _ := newAgent(t)

	_, err := a.FindAndWaitVisible("#x", time.Second)
	assert.Error(t, err)
	assert.Error(t, a.Refresh())

	current, err := a.CurrentURL()
	require.NoError(t, err)
	assert.Empty(t, current)
	assert.NoError(t, a.Close())
}
