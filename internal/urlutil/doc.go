// Package urlutil provides URL canonicalization, crawl-scope matching,
// and filesystem naming helpers used throughout the crawler.
//
// All crawl bookkeeping is keyed by canonical URLs produced by Normalize,
// so every component that touches a URL must normalize it first. The
// matching helpers (domain scope, include/exclude patterns, target
// extensions) are pure functions with no crawl state of their own.
package urlutil
