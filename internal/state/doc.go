// Package state holds the durable crawl data model: the frontier,
// visited set, page records, asset cache and manifest, referrer graph,
// and skip log, together with the JSON snapshot round-trip that makes
// crawls resumable.
//
// The state is deliberately lock-free; the crawl engine serializes all
// access behind one coarse mutex so multi-step check-then-act sequences
// (cache lookup, in-flight dedup) stay atomic.
package state
