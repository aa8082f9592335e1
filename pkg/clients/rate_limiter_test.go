package clients

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiterAllow(t *testing.T) {
	limiter := NewSlidingWindowLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "request %d should be admitted", i+1)
	}
	assert.False(t, limiter.Allow(), "request beyond the window cap should be blocked")

	stats := limiter.Stats()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
	assert.Equal(t, 3, stats.InWindow)
}

func TestSlidingWindowLimiterTrimsOldStamps(t *testing.T) {
	limiter := NewSlidingWindowLimiter(2, 50*time.Millisecond)

	require.True(t, limiter.Allow())
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.Allow(), "stamps older than the window should be trimmed")
}

// Issuing 2N back-to-back calls, each of calls N+1..2N must complete at
// least one full window after the corresponding call among 1..N.
func TestSlidingWindowLimiterSpacing(t *testing.T) {
	const n = 4
	window := 150 * time.Millisecond
	limiter := NewSlidingWindowLimiter(n, window)

	ctx := context.Background()
	completions := make([]time.Time, 0, 2*n)
	for i := 0; i < 2*n; i++ {
		require.NoError(t, limiter.Wait(ctx))
		completions = append(completions, time.Now())
	}

	for i := 0; i < n; i++ {
		gap := completions[n+i].Sub(completions[i])
		assert.GreaterOrEqual(t, gap, window,
			"call %d completed %v after call %d, want at least %v", n+i+1, gap, i+1, window)
	}
}

// Concurrent waiters may be admitted out of arrival order, but the window
// cap must hold: no more than maxRequests admissions within any window.
func TestSlidingWindowLimiterConcurrentWaitersRespectCap(t *testing.T) {
	const workers = 12
	window := 100 * time.Millisecond
	limiter := NewSlidingWindowLimiter(4, window)

	var mu sync.Mutex
	admissions := make([]time.Time, 0, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Wait(context.Background()))
			mu.Lock()
			admissions = append(admissions, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Completion times trail the internal admission stamps by scheduling
	// noise, so allow a small slack on the spacing check.
	slack := 5 * time.Millisecond
	sort.Slice(admissions, func(i, j int) bool { return admissions[i].Before(admissions[j]) })
	for i := 0; i+4 < len(admissions); i++ {
		gap := admissions[i+4].Sub(admissions[i])
		assert.GreaterOrEqual(t, gap, window-slack,
			"admissions %d and %d are only %v apart", i, i+4, gap)
	}

	stats := limiter.Stats()
	assert.Equal(t, int64(workers), stats.AllowedRequests)
}

func TestSlidingWindowLimiterWaitCancel(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Minute)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlidingWindowLimiterSetLimit(t *testing.T) {
	limiter := NewSlidingWindowLimiter(1, time.Second)
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	limiter.SetLimit(3, time.Second)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

func TestNewRateLimiterUsesBurstAsCap(t *testing.T) {
	limiter := NewRateLimiter(2, 5)
	stats := limiter.Stats()
	assert.Equal(t, 5, stats.MaxRequests)
	assert.Equal(t, time.Second, stats.Window)
}
