package client

import (
	"bytes"
	"context"
	stdtls "crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RequestResult holds the timing and status of a request
type RequestResult struct {
	StartTime            time.Time     `json:"start_time"`
	DNSDone              time.Duration `json:"dns_done"`
	ConnectDone          time.Duration `json:"connect_done"` // TCP Handshake complete
	TLSHandshakeDone     time.Duration `json:"tls_done"`
	WroteRequest         time.Duration `json:"wrote_request"`
	GotFirstResponseByte time.Duration `json:"ttfb"`
	TotalDuration        time.Duration `json:"total_duration"`
	StatusCode           int           `json:"status_code"`
	Protocol             string        `json:"protocol"`
	ConnectionReused     bool          `json:"connection_reused"`
	FinalURL             string        `json:"final_url"`
	Body                 []byte        `json:"-"`
}

// ClientOptions configures a LowLatencyClient.
type ClientOptions struct {
	// ProxyURL is a socks5://[user:pass@]host:port proxy. Empty dials directly.
	ProxyURL string
	// UserAgent is sent when a request sets none.
	UserAgent string
	Timeout   time.Duration
	// ForceStandardTransport skips the uTLS fingerprint and uses crypto/tls.
	ForceStandardTransport bool
	// SkipVerify disables certificate verification on the uTLS path.
	SkipVerify bool
	Safety     *SafetyManager
}

// LowLatencyClient wraps an http.Client with a fingerprinted TLS transport,
// a persistent cookie jar and request timing.
type LowLatencyClient struct {
	client    *http.Client
	userAgent string
	safety    *SafetyManager

	ProxyURL string
}

func NewLowLatencyClient(opts ClientOptions) (*LowLatencyClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Safety == nil {
		opts.Safety = NewSafetyManager()
	}

	var transport http.RoundTripper
	if opts.ForceStandardTransport {
		transport = newStandardTransport(opts.ProxyURL)
	} else {
		transport = newFingerprintedTransport(opts.ProxyURL, opts.SkipVerify)
	}

	return &LowLatencyClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			Jar:       jar,
		},
		userAgent: opts.UserAgent,
		safety:    opts.Safety,
		ProxyURL:  opts.ProxyURL,
	}, nil
}

// dialTCP opens the raw connection, through the SOCKS5 proxy when one is set.
func dialTCP(ctx context.Context, dialer *net.Dialer, proxyURL, network, addr string) (net.Conn, error) {
	if proxyURL == "" {
		return dialer.DialContext(ctx, network, addr)
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{
			User:     u.User.Username(),
			Password: password,
		}
	}
	socks, err := proxy.SOCKS5("tcp", u.Host, auth, dialer)
	if err != nil {
		return nil, err
	}
	if cd, ok := socks.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return socks.Dial(network, addr)
}

func newStandardTransport(proxyURL string) http.RoundTripper {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTCP(ctx, dialer, proxyURL, network, addr)
		},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}
}

func newFingerprintedTransport(proxyURL string, skipVerify bool) http.RoundTripper {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTCP(ctx, dialer, proxyURL, network, addr)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, _ := net.SplitHostPort(addr)

			conn, err := dialTCP(ctx, dialer, proxyURL, network, addr)
			if err != nil {
				return nil, err
			}

			// HelloCustom so the ALPN list can be pinned to http/1.1; the
			// transport below cannot speak h2 over a uTLS conn.
			uConn := utls.UClient(conn, &utls.Config{
				ServerName:         host,
				InsecureSkipVerify: skipVerify,
				NextProtos:         []string{"http/1.1"},
			}, utls.HelloCustom)

			spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to get utls spec: %w", err)
			}
			for i, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
					spec.Extensions[i] = alpn
				}
			}
			if err := uConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to apply preset: %w", err)
			}

			if err := uConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return uConn, nil
		},
		ForceAttemptHTTP2: false, // Strict H1.1
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}
}

// Do executes a request, filling in the default User-Agent and consulting
// the SafetyManager before and after.
func (c *LowLatencyClient) Do(req *http.Request) (*http.Response, error) {
	if c.safety.IsTriggered() {
		return nil, fmt.Errorf("%w: %s", ErrSafetyTripped, c.safety.Reason())
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.safety.CheckError(err)
		return nil, err
	}
	if !c.safety.CheckResponse(resp) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrSafetyTripped, c.safety.Reason())
	}
	return resp, nil
}

func (c *LowLatencyClient) CookieJar() http.CookieJar {
	return c.client.Jar
}

// CloseIdleConnections drops pooled connections.
func (c *LowLatencyClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

func (c *LowLatencyClient) ExecuteRequest(ctx context.Context, method, url string) (*RequestResult, error) {
	return c.ExecuteRequestWithHeaders(ctx, method, url, nil, nil)
}

// ExecuteRequestWithHeaders runs one traced request and reads the whole body.
// Transport failures are returned as errors.
func (c *LowLatencyClient) ExecuteRequestWithHeaders(ctx context.Context, method, url string, body []byte, headers map[string]string) (*RequestResult, error) {
	var start time.Time
	var dnsDone, connDone, tlsDone, wroteReq, firstByte time.Time
	var reused bool

	trace := &httptrace.ClientTrace{
		DNSDone:              func(_ httptrace.DNSDoneInfo) { dnsDone = time.Now() },
		ConnectDone:          func(network, addr string, err error) { connDone = time.Now() },
		TLSHandshakeDone:     func(_ stdtls.ConnectionState, _ error) { tlsDone = time.Now() },
		WroteRequest:         func(_ httptrace.WroteRequestInfo) { wroteReq = time.Now() },
		GotFirstResponseByte: func() { firstByte = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			reused = info.Reused
		},
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start = time.Now()
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	result := &RequestResult{
		StartTime:        start,
		TotalDuration:    time.Since(start),
		StatusCode:       resp.StatusCode,
		Protocol:         resp.Proto,
		ConnectionReused: reused,
		FinalURL:         resp.Request.URL.String(),
		Body:             bodyBytes,
	}
	since := func(t time.Time) time.Duration {
		if t.IsZero() {
			return 0
		}
		return t.Sub(start)
	}
	result.DNSDone = since(dnsDone)
	result.ConnectDone = since(connDone)
	result.TLSHandshakeDone = since(tlsDone)
	result.WroteRequest = since(wroteReq)
	result.GotFirstResponseByte = since(firstByte)

	return result, nil
}
