package router

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	// DefaultWindow is the gap after which a key's count starts over
	DefaultWindow = time.Second
	// DefaultIdleTTL is how long an untouched key survives Cleanup
	DefaultIdleTTL = time.Minute
)

// RateLimiter counts actions per key. The window is anchored to the key's
// most recent call, not to a fixed boundary.
type RateLimiter struct {
	mu      deadlock.Mutex
	clients map[string]*ClientLimit
	window  time.Duration
	idleTTL time.Duration
	now     func() time.Time
}

// ClientLimit tracks one key
type ClientLimit struct {
	count      int
	lastAction time.Time
}

// NewRateLimiter creates a limiter with the default window and idle TTL
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithWindow(DefaultWindow, DefaultIdleTTL)
}

// NewRateLimiterWithWindow creates a limiter with explicit timings
func NewRateLimiterWithWindow(window, idleTTL time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &RateLimiter{
		clients: make(map[string]*ClientLimit),
		window:  window,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock, for tests
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow records an action for key and reports whether it is within max per window.
// The timestamp is recorded even when the action is denied.
func (rl *RateLimiter) Allow(key string, max int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[key]
	if !exists {
		limit = &ClientLimit{}
		rl.clients[key] = limit
	} else if now.Sub(limit.lastAction) > rl.window {
		limit.count = 0
	}

	limit.lastAction = now
	limit.count++
	return limit.count <= max
}

// Cleanup removes keys idle for at least the idle TTL and returns how many went
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, limit := range rl.clients {
		if now.Sub(limit.lastAction) >= rl.idleTTL {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
