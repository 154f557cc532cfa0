// Package robots answers per-URL allow/deny questions from each host's
// robots.txt policy, with one cached fetch per scheme+host.
package robots

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// Oracle decides whether a URL may be fetched.
//
// Policies are fetched lazily and cached for the lifetime of one crawl,
// keyed by scheme+host. The cache is unbounded: a same-domain crawl
// touches a handful of hosts at most. Fetch failures fail open: an
// unreachable robots.txt never blocks a crawl, it only gets logged.
type Oracle struct {
	client    *http.Client
	userAgent string
	respect   bool
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // nil entry = fetch failed, allow all
}

// New creates an Oracle. When respect is false every URL is allowed and
// no network activity happens. A nil client falls back to
// http.DefaultClient; a nil logger falls back to slog.Default.
func New(client *http.Client, userAgent string, respect bool, logger *slog.Logger) *Oracle {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		client:    client,
		userAgent: userAgent,
		respect:   respect,
		cache:     make(map[string]*robotstxt.RobotsData),
		logger:    logger,
	}
}

// Allowed reports whether the URL may be fetched under the host's
// robots.txt policy.
func (o *Oracle) Allowed(ctx context.Context, rawURL string) bool {
	if !o.respect {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := o.policyFor(ctx, u)
	if data == nil {
		return true
	}

	group := data.FindGroup(o.userAgent)
	if group == nil {
		return true
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return group.Test(p)
}

// policyFor returns the cached policy for the URL's scheme+host,
// fetching it on first use. A nil return means no usable policy.
func (o *Oracle) policyFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(u.Scheme + "://" + u.Host)

	o.mu.Lock()
	data, ok := o.cache[key]
	o.mu.Unlock()
	if ok {
		return data
	}

	data = o.fetch(ctx, key+"/robots.txt")

	o.mu.Lock()
	o.cache[key] = data
	o.mu.Unlock()
	return data
}

// fetch retrieves and parses robots.txt. Any failure returns nil so the
// caller fails open.
func (o *Oracle) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		o.logger.Warn("failed to build robots.txt request", "url", robotsURL, "error", err)
		return nil
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("failed to fetch robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		o.logger.Warn("failed to parse robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
