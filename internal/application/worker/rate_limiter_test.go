package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter without real sleeping: sleeps advance the
// clock instead of blocking.
type fakeClock struct {
	now time.Time
}

func newTestLimiter(maxJobs int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewRateLimiter(maxJobs, window)
	limiter.now = func() time.Time { return clock.now }
	limiter.sleep = func(_ context.Context, d time.Duration) error {
		clock.now = clock.now.Add(d)
		return nil
	}
	return limiter, clock
}

// TestRateLimiter_AllowsUpToMax verifies maxJobs acquisitions inside one
// window proceed without waiting.
func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	limiter, clock := newTestLimiter(3, time.Minute)
	start := clock.now

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	assert.Equal(t, start, clock.now, "first maxJobs acquisitions must not wait")
}

// TestRateLimiter_DelaysOverMax verifies the maxJobs+1-th acquisition waits
// until the oldest start leaves the window.
func TestRateLimiter_DelaysOverMax(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute)
	start := clock.now

	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))

	assert.Equal(t, start.Add(time.Minute), clock.now,
		"third acquisition must wait out the full window")
}

// TestRateLimiter_WindowSlides verifies slots free as old starts age out,
// not all at once at a window boundary.
func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute)

	require.NoError(t, limiter.Acquire(context.Background()))
	clock.now = clock.now.Add(30 * time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))

	// Third start should wait only until the first start expires.
	before := clock.now
	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Equal(t, before.Add(30*time.Second), clock.now)
}

// TestRateLimiter_Disabled verifies a zero limit never blocks.
func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Minute)
	assert.False(t, limiter.Enabled())

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
}

// TestRateLimiter_CancelledWhileWaiting verifies a blocked Acquire returns
// the context error.
func TestRateLimiter_CancelledWhileWaiting(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, limiter.Acquire(ctx), context.Canceled)
}
