package server

import (
	"sync"
	"time"
)

// RateLimiter caps inbound messages per connection with a sliding window.
// It keeps its own lock; the read loop calls it outside Server.mu.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time // connectionID -> recent message times
	mu          sync.Mutex
	now         func() time.Time
}

// NewRateLimiter allows maxRequests messages per connection in any window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records a message from connectionID and reports whether it fits in
// the window.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.prune(r.requests[connectionID], now.Add(-r.window))

	if len(recent) >= r.maxRequests {
		r.requests[connectionID] = recent
		return false
	}
	r.requests[connectionID] = append(recent, now)
	return true
}

// Cleanup forgets connections with no activity inside the window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	for connID, timestamps := range r.requests {
		if len(r.prune(timestamps, cutoff)) == 0 {
			delete(r.requests, connID)
		}
	}
}

// RemoveConnection forgets a closed connection.
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// prune keeps timestamps after cutoff. Timestamps are appended in order, so
// the kept ones are a suffix.
func (r *RateLimiter) prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range timestamps {
		if ts.After(cutoff) {
			return timestamps[i:]
		}
	}
	return timestamps[:0]
}
