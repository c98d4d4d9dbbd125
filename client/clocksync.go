package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog"
)

// ClockOffset is local minus remote time in milliseconds. Subtract it from a
// local reading to get remote time.
type ClockOffset int64

// Duration returns the offset as a time.Duration.
func (o ClockOffset) Duration() time.Duration {
	return time.Duration(o) * time.Millisecond
}

// TimeSource reports the authoritative current time in Unix milliseconds.
type TimeSource interface {
	RemoteNow(ctx context.Context) (int64, error)
}

// roundTripper is implemented by sources that can report how long their
// last query took.
type roundTripper interface {
	LastRoundTrip() time.Duration
}

// ClockSample records one offset measurement.
type ClockSample struct {
	Offset ClockOffset   `json:"offset_ms"`
	Local  int64         `json:"local_ms"`
	Remote int64         `json:"remote_ms"`
	RTT    time.Duration `json:"rtt"`
}

// ClockSynchronizer measures the offset between the local clock and a
// TimeSource with a single round trip.
type ClockSynchronizer struct {
	source TimeSource
	clock  Clock
	log    zerolog.Logger

	last ClockSample
}

func NewClockSynchronizer(source TimeSource, clock Clock, logger zerolog.Logger) *ClockSynchronizer {
	return &ClockSynchronizer{source: source, clock: clock, log: logger}
}

// MeasureOffset takes one sample. The local reading is taken before the
// request is issued. Failures wrap ErrClockSync; no zero offset is ever
// substituted.
func (s *ClockSynchronizer) MeasureOffset(ctx context.Context) (ClockOffset, error) {
	local := s.clock.Now().UnixMilli()
	remote, err := s.source.RemoteNow(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClockSync, err)
	}

	sample := ClockSample{
		Offset: ClockOffset(local - remote),
		Local:  local,
		Remote: remote,
	}
	if rt, ok := s.source.(roundTripper); ok {
		sample.RTT = rt.LastRoundTrip()
	}
	s.last = sample

	s.log.Info().
		Int64("local_ms", local).
		Int64("remote_ms", remote).
		Int64("offset_ms", int64(sample.Offset)).
		Dur("rtt", sample.RTT).
		Msg("measured clock offset")
	return sample.Offset, nil
}

// LastSample returns the most recent measurement.
func (s *ClockSynchronizer) LastSample() ClockSample {
	return s.last
}

// HTTPTimeSource reads a millisecond timestamp from a JSON endpoint.
type HTTPTimeSource struct {
	client *LowLatencyClient
	url    string
	field  string

	lastRTT time.Duration
}

// NewHTTPTimeSource queries url and reads the integer millisecond value of field.
func NewHTTPTimeSource(c *LowLatencyClient, url, field string) *HTTPTimeSource {
	if field == "" {
		field = "serverTime"
	}
	return &HTTPTimeSource{client: c, url: url, field: field}
}

func (h *HTTPTimeSource) RemoteNow(ctx context.Context) (int64, error) {
	res, err := h.client.ExecuteRequest(ctx, http.MethodGet, h.url)
	if err != nil {
		return 0, fmt.Errorf("time request failed: %w", err)
	}
	h.lastRTT = res.TotalDuration
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, fmt.Errorf("time endpoint returned status: %d", res.StatusCode)
	}
	return parseServerTime(res.Body, h.field)
}

func (h *HTTPTimeSource) LastRoundTrip() time.Duration {
	return h.lastRTT
}

// parseServerTime extracts field from a JSON object. The value may be a
// JSON number or a numeric string but must be an integer.
func parseServerTime(body []byte, field string) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to decode time response: %w", err)
	}
	raw, ok := doc[field]
	if !ok {
		return 0, fmt.Errorf("time response has no %q field", field)
	}

	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, fmt.Errorf("time field %q has unexpected type %T", field, raw)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("time field %q is not an integer: %q", field, s)
	}
	return ms, nil
}

// NTPTimeSource asks an NTP server for the current time.
type NTPTimeSource struct {
	Server  string
	Timeout time.Duration

	query   func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
	lastRTT time.Duration
}

func NewNTPTimeSource(server string) *NTPTimeSource {
	return &NTPTimeSource{
		Server:  server,
		Timeout: 5 * time.Second,
		query:   ntp.QueryWithOptions,
	}
}

func (n *NTPTimeSource) RemoteNow(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := n.query(n.Server, ntp.QueryOptions{Timeout: n.Timeout})
	if err != nil {
		return 0, fmt.Errorf("ntp query %s failed: %w", n.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s rejected: %w", n.Server, err)
	}
	n.lastRTT = resp.RTT
	return time.Now().Add(resp.ClockOffset).UnixMilli(), nil
}

func (n *NTPTimeSource) LastRoundTrip() time.Duration {
	return n.lastRTT
}
