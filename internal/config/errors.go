package config

import "errors"

// Configuration validation errors returned by Config.Validate.
//
// Design decision: Package-level sentinel errors rather than fresh
// error instances, so callers can use errors.Is for programmatic
// handling while the messages stay human-readable.
var (
	// ErrNoStartURL is returned when no start URL is provided.
	ErrNoStartURL = errors.New("no start URL: provide the page to crawl from")

	// ErrInvalidStartURL is returned when the start URL is not a
	// crawlable http(s) URL.
	ErrInvalidStartURL = errors.New("invalid start URL: must be an absolute http(s) URL")

	// ErrInvalidMaxDepth is returned for a negative crawl depth.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidConcurrency is returned when either worker pool size is
	// not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: worker pool sizes must be positive")

	// ErrInvalidRateLimit is returned for a negative request rate.
	// Use 0 for unlimited.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative (0 = unlimited)")

	// ErrInvalidTimeout is returned when the request timeout is not
	// positive; a zero timeout would fail every request immediately.
	ErrInvalidTimeout = errors.New("invalid request timeout: must be positive")

	// ErrInvalidRetry is returned for negative retry attempts or a
	// negative backoff factor.
	ErrInvalidRetry = errors.New("invalid retry settings: attempts and backoff must be non-negative")

	// ErrInvalidMaxBodySize is returned for a negative body size limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoExtensions is returned when the target extension set is
	// empty after normalization. A crawl with nothing to download is a
	// configuration mistake, not a valid run.
	ErrNoExtensions = errors.New("no target extensions: select at least one file extension to download")
)
