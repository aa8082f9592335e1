// Package clients provides the outbound HTTP resiliency layer: rate
// limiting, circuit breaking, and the per-provider resilient client.
package clients

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter defines the interface for rate limiting implementations.
type RateLimiter interface {
	// Allow checks if a request is admitted immediately
	Allow() bool

	// Wait blocks until a request is admitted or the context is done
	Wait(ctx context.Context) error

	// SetLimit updates the admission limit and window
	SetLimit(maxRequests int, window time.Duration)

	// Stats returns rate limiter statistics
	Stats() RateLimiterStats
}

// RateLimiterStats provides statistics about rate limiter behaviour for
// monitoring and debugging.
type RateLimiterStats struct {
	MaxRequests     int           `json:"max_requests"`
	Window          time.Duration `json:"window"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	InWindow        int           `json:"in_window"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// SlidingWindowLimiter admits at most maxRequests calls within any trailing
// window. It keeps the timestamps of recent admissions and trims them lazily
// on each check. Bursts can cluster at window boundaries; that looseness
// versus a token bucket is acceptable for provider quota protection.
type SlidingWindowLimiter struct {
	maxRequests int
	window      time.Duration
	stamps      []time.Time

	// Stats
	allowedRequests int64
	blockedRequests int64
	totalWaitTime   int64

	mu sync.Mutex
}

// NewSlidingWindowLimiter creates a limiter admitting maxRequests per window.
func NewSlidingWindowLimiter(maxRequests int, window time.Duration) *SlidingWindowLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		stamps:      make([]time.Time, 0, maxRequests),
	}
}

// NewRateLimiter creates a sliding-window limiter from a requests-per-second
// rate and burst size. Burst is the hard cap within any one-second window.
func NewRateLimiter(requestsPerSecond, burst int) RateLimiter {
	max := burst
	if max <= 0 {
		max = requestsPerSecond
	}
	return NewSlidingWindowLimiter(max, time.Second)
}

// Allow checks if a request is admitted immediately.
func (sl *SlidingWindowLimiter) Allow() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.trim(time.Now())

	if len(sl.stamps) < sl.maxRequests {
		sl.stamps = append(sl.stamps, time.Now())
		atomic.AddInt64(&sl.allowedRequests, 1)
		return true
	}

	atomic.AddInt64(&sl.blockedRequests, 1)
	return false
}

// Wait blocks until a request is admitted. When the window is full it
// suspends for window - (now - oldest), the exact time at which the oldest
// recorded admission falls out of the trailing window.
//
// Concurrent waiters race for freed slots when they wake: admission order
// is approximately FIFO by arrival but not guaranteed under contention.
// The window cap itself always holds; only ordering is loose.
func (sl *SlidingWindowLimiter) Wait(ctx context.Context) error {
	start := time.Now()

	for {
		sl.mu.Lock()
		now := time.Now()
		sl.trim(now)

		if len(sl.stamps) < sl.maxRequests {
			sl.stamps = append(sl.stamps, now)
			atomic.AddInt64(&sl.allowedRequests, 1)
			atomic.AddInt64(&sl.totalWaitTime, time.Since(start).Nanoseconds())
			sl.mu.Unlock()
			return nil
		}

		wait := sl.window - now.Sub(sl.stamps[0])
		sl.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			atomic.AddInt64(&sl.blockedRequests, 1)
			return ctx.Err()
		}
	}
}

// trim drops timestamps older than the window. Caller must hold the lock.
func (sl *SlidingWindowLimiter) trim(now time.Time) {
	cutoff := now.Add(-sl.window)
	idx := 0
	for idx < len(sl.stamps) && !sl.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		sl.stamps = append(sl.stamps[:0], sl.stamps[idx:]...)
	}
}

// SetLimit updates the admission limit and window.
func (sl *SlidingWindowLimiter) SetLimit(maxRequests int, window time.Duration) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if maxRequests > 0 {
		sl.maxRequests = maxRequests
	}
	if window > 0 {
		sl.window = window
	}
}

// Stats returns rate limiter statistics.
func (sl *SlidingWindowLimiter) Stats() RateLimiterStats {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	allowed := atomic.LoadInt64(&sl.allowedRequests)
	blocked := atomic.LoadInt64(&sl.blockedRequests)
	totalWait := atomic.LoadInt64(&sl.totalWaitTime)

	avgWait := time.Duration(0)
	if allowed > 0 {
		avgWait = time.Duration(totalWait / allowed)
	}

	return RateLimiterStats{
		MaxRequests:     sl.maxRequests,
		Window:          sl.window,
		AllowedRequests: allowed,
		BlockedRequests: blocked,
		InWindow:        len(sl.stamps),
		AverageWaitTime: avgWait,
	}
}
