package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"flashbuy-bot/client"
)

// HTTPAgent is a Browser without JavaScript. Pages are fetched with the
// low-latency client and queried with goquery; clicking follows links and
// submits forms.
type HTTPAgent struct {
	ctx         context.Context
	client      *client.LowLatencyClient
	fingerprint *client.FingerprintManager
	clock       client.Clock

	// PollInterval is the refetch cadence while waiting for an element.
	PollInterval time.Duration

	current *url.URL
	doc     *goquery.Document
}

type docElement struct {
	sel string
	s   *goquery.Selection
}

func (e *docElement) Selector() string { return e.sel }

func NewHTTPAgent(ctx context.Context, c *client.LowLatencyClient, fp *client.FingerprintManager, clock client.Clock) *HTTPAgent {
	return &HTTPAgent{
		ctx:          ctx,
		client:       c,
		fingerprint:  fp,
		clock:        clock,
		PollInterval: 200 * time.Millisecond,
	}
}

func (a *HTTPAgent) headers() map[string]string {
	if a.fingerprint == nil {
		return map[string]string{}
	}
	return a.fingerprint.GetRandomHeaders()
}

// load performs a request and replaces the current document with the response.
func (a *HTTPAgent) load(method, target string, body []byte, headers map[string]string) error {
	res, err := a.client.ExecuteRequestWithHeaders(a.ctx, method, target, body, headers)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("%s %s returned status: %d", method, target, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}
	u, err := url.Parse(res.FinalURL)
	if err != nil {
		return err
	}
	a.current = u
	a.doc = doc
	return nil
}

func (a *HTTPAgent) Navigate(target string) error {
	h := a.headers()
	if a.current != nil {
		h["Referer"] = a.current.String()
	}
	return a.load(http.MethodGet, target, nil, h)
}

func (a *HTTPAgent) CurrentURL() (string, error) {
	if a.current == nil {
		return "", nil
	}
	return a.current.String(), nil
}

func (a *HTTPAgent) Refresh() error {
	if a.current == nil {
		return fmt.Errorf("refresh before any navigation")
	}
	return a.load(http.MethodGet, a.current.String(), nil, a.headers())
}

// visible rejects nodes hidden by attribute or inline style.
func visible(s *goquery.Selection) bool {
	if _, hidden := s.Attr("hidden"); hidden {
		return false
	}
	if t, _ := s.Attr("type"); strings.EqualFold(t, "hidden") {
		return false
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

// FindAndWaitVisible checks the current document, refetching it every
// PollInterval until the selector matches a visible node or timeout passes.
func (a *HTTPAgent) FindAndWaitVisible(selector string, timeout time.Duration) (client.Element, error) {
	if a.doc == nil {
		return nil, fmt.Errorf("find %s before any navigation", selector)
	}
	deadline := a.clock.Now().Add(timeout)
	for {
		var found *goquery.Selection
		a.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if visible(s) {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return &docElement{sel: selector, s: found}, nil
		}

		if !a.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s not visible after %s", client.ErrElementTimeout, selector, timeout)
		}
		select {
		case <-a.clock.After(a.PollInterval):
		case <-a.ctx.Done():
			return nil, a.ctx.Err()
		}
		if err := a.Refresh(); err != nil {
			return nil, err
		}
	}
}

func (a *HTTPAgent) selection(el client.Element) (*goquery.Selection, error) {
	de, ok := el.(*docElement)
	if !ok || de.s == nil {
		return nil, fmt.Errorf("element %T was not produced by the http agent", el)
	}
	return de.s, nil
}

func (a *HTTPAgent) resolve(ref string) (string, error) {
	u, err := a.current.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", ref, err)
	}
	return u.String(), nil
}

// Click follows an anchor's href or submits the enclosing form.
func (a *HTTPAgent) Click(el client.Element) error {
	s, err := a.selection(el)
	if err != nil {
		return err
	}

	if href, ok := s.Attr("href"); ok && !strings.HasPrefix(strings.ToLower(href), "javascript:") && href != "#" {
		target, err := a.resolve(href)
		if err != nil {
			return err
		}
		return a.Navigate(target)
	}

	form := s.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("element %s is not a link or form control", el.Selector())
	}
	return a.submit(form, s)
}

// submit posts every named field of form, plus the clicked control.
func (a *HTTPAgent) submit(form, clicked *goquery.Selection) error {
	data := url.Values{}
	form.Find("input, select, textarea").Each(func(i int, f *goquery.Selection) {
		name, exists := f.Attr("name")
		if !exists || name == "" {
			return
		}
		switch strings.ToLower(f.AttrOr("type", "")) {
		case "submit", "button", "image", "reset":
			return
		case "checkbox", "radio":
			if _, checked := f.Attr("checked"); !checked {
				return
			}
		}
		if goquery.NodeName(f) == "select" {
			data.Set(name, f.Find("option[selected]").AttrOr("value", f.Find("option").First().AttrOr("value", "")))
			return
		}
		if goquery.NodeName(f) == "textarea" {
			data.Set(name, f.Text())
			return
		}
		data.Set(name, f.AttrOr("value", ""))
	})
	if name, ok := clicked.Attr("name"); ok && name != "" {
		data.Set(name, clicked.AttrOr("value", ""))
	}

	action, err := a.resolve(form.AttrOr("action", a.current.String()))
	if err != nil {
		return err
	}
	headers := a.headers()
	headers["Referer"] = a.current.String()
	headers["Origin"] = a.current.Scheme + "://" + a.current.Host

	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
		return a.load(http.MethodPost, action, []byte(data.Encode()), headers)
	}
	u, err := url.Parse(action)
	if err != nil {
		return err
	}
	u.RawQuery = data.Encode()
	return a.load(http.MethodGet, u.String(), nil, headers)
}

func (a *HTTPAgent) Attribute(el client.Element, name string) (string, error) {
	s, err := a.selection(el)
	if err != nil {
		return "", err
	}
	switch name {
	case "textContent", "innerText":
		return s.Text(), nil
	case "outerHTML":
		return goquery.OuterHtml(s)
	}
	return s.AttrOr(name, ""), nil
}

// Cookies returns the jar's cookies for the current page. The jar does not
// expose expiry, so every record comes back without one.
func (a *HTTPAgent) Cookies() ([]client.Cookie, error) {
	if a.current == nil {
		return nil, nil
	}
	jarCookies := a.client.CookieJar().Cookies(a.current)
	cookies := make([]client.Cookie, 0, len(jarCookies))
	for _, c := range jarCookies {
		cookies = append(cookies, client.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: a.current.Hostname(),
			Path:   "/",
		})
	}
	return cookies, nil
}

// SetCookies stores cookies in the jar, grouped under their domain.
func (a *HTTPAgent) SetCookies(cookies []client.Cookie) error {
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		scheme := "https"
		if host == "" {
			if a.current == nil {
				return fmt.Errorf("cookie %s has no domain and no page is open", c.Name)
			}
			host, scheme = a.current.Host, a.current.Scheme
		}
		u := &url.URL{Scheme: scheme, Host: host, Path: "/"}

		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if strings.HasPrefix(c.Domain, ".") {
			hc.Domain = c.Domain
		}
		if c.Expiry != nil {
			hc.Expires = time.Unix(*c.Expiry, 0)
		}
		a.client.CookieJar().SetCookies(u, []*http.Cookie{hc})
	}
	return nil
}

func (a *HTTPAgent) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ client.Browser = (*HTTPAgent)(nil)
