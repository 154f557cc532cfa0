package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestAcquire tests rate limiter pacing and the unlimited mode.
func TestAcquire(t *testing.T) {
	t.Parallel()

	t.Run("unlimited never waits", func(t *testing.T) {
		t.Parallel()

		l := New(0)
		start := time.Now()
		for i := 0; i < 100; i++ {
			if err := l.Acquire(context.Background()); err != nil {
				t.Fatalf("acquire failed: %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("unlimited limiter waited %v", elapsed)
		}
	})

	t.Run("limited spaces acquisitions", func(t *testing.T) {
		t.Parallel()

		l := New(50) // 20ms between grants
		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := l.Acquire(context.Background()); err != nil {
				t.Fatalf("acquire failed: %v", err)
			}
		}
		// First grant is immediate; the next two wait ~20ms each.
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("expected at least 30ms of pacing, got %v", elapsed)
		}
	})

	t.Run("cancellation interrupts a wait", func(t *testing.T) {
		t.Parallel()

		l := New(0.1) // 10s between grants
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("first acquire failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := l.Acquire(ctx); err == nil {
			t.Error("expected cancellation error")
		}
	})

	t.Run("update to unlimited releases pacing", func(t *testing.T) {
		t.Parallel()

		l := New(0.1)
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("first acquire failed: %v", err)
		}
		l.Update(0)
		start := time.Now()
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire after update failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("expected immediate grant after update, waited %v", elapsed)
		}
	})
}
