package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting for outbound API calls.
// The bucket starts full, so an initial burst up to capacity is allowed.
type RateLimiter struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens added per second
	lastRefill time.Time
	mutex      sync.Mutex
	name       string
}

// RateLimiterState is a snapshot of the limiter for status reads.
type RateLimiterState struct {
	Name       string
	Capacity   float64
	Tokens     float64
	RefillRate float64
	LastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with the given bucket capacity
// and steady refill rate (tokens per second).
func NewRateLimiter(name string, capacity int, refillRate float64) *RateLimiter {
	return &RateLimiter{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		name:       name,
	}
}

// Allow checks if one operation is allowed under the rate limit.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if N operations are allowed under the rate limit.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks until one operation is allowed or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until N operations are allowed or the context is cancelled.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	for {
		if rl.AllowN(n) {
			return nil
		}

		waitTime := rl.calculateWaitTime(n)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// refillTokens adds tokens based on elapsed time. Caller holds the mutex.
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// calculateWaitTime estimates how long until N tokens are available.
func (rl *RateLimiter) calculateWaitTime(n int) time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= float64(n) {
		return 0
	}

	needed := float64(n) - rl.tokens
	seconds := needed / rl.refillRate

	// Small buffer to account for timing precision.
	return time.Duration(seconds*float64(time.Second)) + 5*time.Millisecond
}

// State returns a snapshot of the limiter.
func (rl *RateLimiter) State() RateLimiterState {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	return RateLimiterState{
		Name:       rl.name,
		Capacity:   rl.capacity,
		Tokens:     rl.tokens,
		RefillRate: rl.refillRate,
		LastRefill: rl.lastRefill,
	}
}
