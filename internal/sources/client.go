// Package sources contains the upstream adapters: news, fun content, crazy
// Thursday copy, stock indices and the yearly holiday documents. Adapters
// share one transport discipline: bounded timeout, rate limit, circuit
// breaker, and nil-payload degradation — a dead upstream never blocks the
// pipeline.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"moyuren/internal/errcode"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "moyuren/1.0 (+https://github.com/moyuren)"

	// maxResponseSize caps bodies at 4 MiB to bound memory on misbehaving
	// upstreams.
	maxResponseSize = 4 << 20
)

// Client is the shared upstream HTTP client. One instance per adapter so the
// breaker and limiter state stay per-upstream.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient builds an adapter client with the given per-request timeout.
// A zero timeout selects the default of 10s.
func NewClient(name string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	settings := gobreaker.Settings{Name: name}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		// Upstreams here are public free endpoints; 2 rps with small bursts
		// keeps us well below any published limit.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// GetBody performs a GET and returns the raw body. Transport failures, HTTP
// status ≥ 400 and an open breaker all surface as coded errors; the adapters
// convert them to nil payloads.
func (c *Client) GetBody(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errcode.Wrap(errcode.FetchRateLimited, "rate limiter wait", err)
	}

	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, errcode.Wrap(errcode.FetchBadBody, "build request", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				return nil, errcode.Wrap(errcode.FetchTimeout, target, err)
			}
			return nil, errcode.Wrap(errcode.FetchDNS, target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, errcode.New(errcode.FetchHTTPStatus,
				fmt.Sprintf("GET %s: HTTP %d", target, resp.StatusCode))
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, errcode.Wrap(errcode.FetchBadBody, "read body", err)
		}
		return raw, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errcode.Wrap(errcode.FetchCircuitOpen, rawURL, err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

// GetJSON performs a GET and decodes the body as a JSON object.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error) {
	raw, err := c.GetBody(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errcode.Wrap(errcode.FetchBadBody, "non-object JSON body", err)
	}
	return obj, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; {
		if te, ok := e.(timeout); ok && te.Timeout() {
			return true
		}
		type unwrapper interface{ Unwrap() error }
		ue, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = ue.Unwrap()
	}
	return false
}
