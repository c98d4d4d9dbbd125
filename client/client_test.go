package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowLatencyClient_HeadersAndCookies(t *testing.T) {
	var gotUA, gotLang, gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "thor", Value: "abc", Path: "/"})
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		if c, err := r.Cookie("thor"); err == nil {
			gotCookie = c.Value
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.ExecuteRequest(ctx, http.MethodGet, srv.URL+"/login")
	require.NoError(t, err)

	res, err := c.ExecuteRequestWithHeaders(ctx, http.MethodPost, srv.URL+"/echo", []byte("payload"), map[string]string{"Accept-Language": "zh-CN"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "payload", string(res.Body))
	assert.Equal(t, srv.URL+"/echo", res.FinalURL)
	assert.Equal(t, defaultUserAgent, gotUA)
	assert.Equal(t, "zh-CN", gotLang)
	assert.Equal(t, "abc", gotCookie)

	u, _ := url.Parse(srv.URL)
	assert.Len(t, c.CookieJar().Cookies(u), 1)
}

func TestLowLatencyClient_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("here"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newTestClient(t).ExecuteRequest(context.Background(), http.MethodGet, srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
}

func TestLowLatencyClient_SafetyStopsTraffic(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.ExecuteRequest(context.Background(), http.MethodGet, srv.URL)
	assert.True(t, errors.Is(err, ErrSafetyTripped))

	_, err = c.ExecuteRequest(context.Background(), http.MethodGet, srv.URL)
	assert.True(t, errors.Is(err, ErrSafetyTripped))
	assert.Equal(t, 1, hits)
}

func TestLowLatencyClient_FingerprintedTransportPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := NewLowLatencyClient(ClientOptions{})
	require.NoError(t, err)
	res, err := c.ExecuteRequest(context.Background(), http.MethodGet, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1", res.Protocol)
}
