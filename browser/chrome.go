// Package browser provides the page-driving agents behind client.Browser:
// a Chrome DevTools agent for real pages and an HTTP agent for pages that
// work without JavaScript.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"flashbuy-bot/client"
)

// ChromeOptions configures the launched Chrome process.
type ChromeOptions struct {
	Headless bool
	// ExecPath overrides Chrome discovery.
	ExecPath    string
	UserDataDir string
	UserAgent   string
	// ProxyServer is passed to --proxy-server. Chrome does not accept
	// credentials here.
	ProxyServer string
}

// Chrome drives a local Chrome over the DevTools protocol.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

type chromeElement struct {
	sel  string
	node *cdp.Node
}

func (e *chromeElement) Selector() string { return e.sel }

// NewChrome launches Chrome. The browser lives until Close or until parent
// is cancelled.
func NewChrome(parent context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("headless", opts.Headless),
		// hide the "controlled by automated test software" bar
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("start-maximized", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return &Chrome{ctx: ctx, cancel: cancel, allocCancel: allocCancel}, nil
}

func (c *Chrome) Navigate(url string) error {
	return chromedp.Run(c.ctx, chromedp.Navigate(url))
}

func (c *Chrome) CurrentURL() (string, error) {
	var loc string
	if err := chromedp.Run(c.ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (c *Chrome) FindAndWaitVisible(selector string, timeout time.Duration) (client.Element, error) {
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(tctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && c.ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s not visible after %s", client.ErrElementTimeout, selector, timeout)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s matched no nodes", client.ErrElementTimeout, selector)
	}
	return &chromeElement{sel: selector, node: nodes[0]}, nil
}

func (c *Chrome) node(el client.Element) (*cdp.Node, error) {
	ce, ok := el.(*chromeElement)
	if !ok || ce.node == nil {
		return nil, fmt.Errorf("element %T was not produced by chrome", el)
	}
	return ce.node, nil
}

func (c *Chrome) Click(el client.Element) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.MouseClickNode(n))
}

func (c *Chrome) Attribute(el client.Element, name string) (string, error) {
	n, err := c.node(el)
	if err != nil {
		return "", err
	}
	var v interface{}
	if err := chromedp.Run(c.ctx, chromedp.JavascriptAttribute([]cdp.NodeID{n.NodeID}, name, &v, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return fmt.Sprint(s), nil
	}
}

func (c *Chrome) Cookies() ([]client.Cookie, error) {
	var raw []*network.Cookie
	err := chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]client.Cookie, 0, len(raw))
	for _, rc := range raw {
		ck := client.Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Secure:   rc.Secure,
			HTTPOnly: rc.HTTPOnly,
		}
		if !rc.Session && rc.Expires > 0 {
			exp := int64(rc.Expires)
			ck.Expiry = &exp
		}
		cookies = append(cookies, ck)
	}
	return cookies, nil
}

// SetCookies installs cookies on the browser. Records without a domain are
// scoped to the current page.
func (c *Chrome) SetCookies(cookies []client.Cookie) error {
	current, err := c.CurrentURL()
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			p := network.SetCookie(ck.Name, ck.Value).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly)
			if ck.Domain != "" {
				p = p.WithDomain(ck.Domain)
			} else {
				p = p.WithURL(current)
			}
			if ck.Path != "" {
				p = p.WithPath(ck.Path)
			}
			if ck.Expiry != nil {
				exp := cdp.TimeSinceEpoch(time.Unix(*ck.Expiry, 0))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

func (c *Chrome) Refresh() error {
	return chromedp.Run(c.ctx, chromedp.Reload())
}

// Close shuts the browser down. Safe to call more than once.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var _ client.Browser = (*Chrome)(nil)
