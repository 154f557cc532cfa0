// Package ratelimit throttles outbound request issuance to a configured
// requests-per-second rate, shared across every worker in the crawl.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter serializes request issuance across all workers. Each Acquire
// blocks until at least 1/r seconds have elapsed since the previous
// grant. The limiter gates when requests start, not how long they run:
// concurrent requests still execute in parallel once granted.
//
// Design decision: We wrap golang.org/x/time/rate with burst 1 rather
// than implementing interval arithmetic ourselves because:
//  1. Wait already handles contention between concurrent callers
//  2. Burst 1 gives exactly the one-request-per-interval spacing we want
//  3. Context cancellation falls out for free
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	unlimited bool
}

// New creates a Limiter granting ratePerSec acquisitions per second.
// A rate of 0 (or less) means unlimited: Acquire never waits.
func New(ratePerSec float64) *Limiter {
	l := &Limiter{}
	l.Update(ratePerSec)
	return l
}

// Update changes the rate. Safe to call while workers are blocked in
// Acquire; already-waiting callers keep their original reservation.
func (l *Limiter) Update(ratePerSec float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ratePerSec <= 0 {
		l.unlimited = true
		l.limiter = nil
		return
	}
	l.unlimited = false
	if l.limiter == nil {
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
		return
	}
	l.limiter.SetLimit(rate.Limit(ratePerSec))
}

// Acquire blocks until the caller may issue a request, or until the
// context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	limiter := l.limiter
	unlimited := l.unlimited
	l.mu.Unlock()

	if unlimited || limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
