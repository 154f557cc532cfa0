// Package fetch provides the crawler's HTTP transport: GET and HEAD
// with a per-request timeout and transparent retry on transient HTTP
// statuses.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// retryableStatuses are the HTTP statuses retried transparently:
// rate limiting and the transient 5xx gateway family.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client wraps http.Client with status-based retry and a fixed
// User-Agent. The zero value is not usable; construct with New.
//
// Design decision: Retry lives in the client rather than in the crawl
// engine so page fetches, asset downloads, and the robots oracle all
// share one policy.
type Client struct {
	http      *http.Client
	userAgent string
	attempts  int
	backoff   float64
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRetry sets the retry attempt count and exponential backoff
// factor. The wait before retry n is backoff * 2^(n-1) seconds.
func WithRetry(attempts int, backoff float64) Option {
	return func(c *Client) {
		if attempts >= 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// New creates a Client with the given per-request timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: timeout},
		attempts: 3,
		backoff:  0.8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the underlying http.Client for collaborators that
// need one (the robots oracle); it shares the timeout but not the
// retry policy.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get issues a GET request, retrying on retryable statuses. The
// response body is open and must be closed by the caller. A non-2xx
// final status is returned as a response, not an error; callers decide
// how to record it.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Head issues a HEAD request with the same retry policy as Get. Used
// to probe an asset's content type before streaming the download.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, url)
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, method, url, nil)
		if rerr != nil {
			return nil, fmt.Errorf("build %s request for %s: %w", method, url, rerr)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err = c.http.Do(req)
		if err == nil && !retryableStatuses[resp.StatusCode] {
			return resp, nil
		}
		if attempt >= c.attempts {
			break
		}

		// The retried response's body would otherwise leak the
		// connection.
		if err == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}

		wait := time.Duration(c.backoff * math.Pow(2, float64(attempt)) * float64(time.Second))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	// Retries exhausted on a retryable status; hand the last response
	// to the caller.
	return resp, nil
}
