package worker

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps how many jobs start inside a sliding window, independent
// of worker concurrency. A queue with concurrency 10 and a limit of 5 per
// minute still runs at most 5 jobs per minute; the 6th waits until the
// oldest start falls out of the window.
type RateLimiter struct {
	mu      sync.Mutex
	maxJobs int
	window  time.Duration
	starts  []time.Time
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a sliding-window limiter. maxJobs <= 0 or a
// non-positive window disables limiting.
func NewRateLimiter(maxJobs int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxJobs: maxJobs,
		window:  window,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enabled reports whether the limiter actually limits.
func (r *RateLimiter) Enabled() bool {
	return r != nil && r.maxJobs > 0 && r.window > 0
}

// Acquire blocks until a slot is available inside the window, then records
// the start. Returns the context error if cancelled while waiting.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}

	for {
		wait := r.reserve()
		if wait <= 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a start if a slot is free, otherwise returns how long
// until the oldest start leaves the window.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	kept := r.starts[:0]
	for _, t := range r.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.starts = kept

	if len(r.starts) < r.maxJobs {
		r.starts = append(r.starts, now)
		return 0
	}
	return r.starts[0].Sub(cutoff)
}
